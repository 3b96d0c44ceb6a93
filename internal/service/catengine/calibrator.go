package catengine

import (
	"log"
	"math"

	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// Границы параметров при калибровке. Удерживают М-шаг от ухода
// в вырожденные значения на шумных данных.
const (
	calibMinDiscrimination = 0.2
	calibMaxDiscrimination = 3.0
	calibMaxGuessing       = 0.45
	calibInnerNewtonSteps  = 5
	calibDerivativeStep    = 1e-3

	// Нижняя асимптота оценивается только при достаточном ожидаемом числе
	// ответивших в асимптотической зоне (theta заметно ниже difficulty);
	// иначе c не идентифицируем и сцепляется с difficulty в хребет
	// правдоподобия
	calibAsymptoteMinWeight = 20.0

	// Параметры бета-априора Beta(3, 19) на c: мода 0.1
	calibGuessingPriorAlpha = 3.0
	calibGuessingPriorBeta  = 19.0
)

// CalibrationResult — итог калибровки до упаковки в entity.DifficultyCalibration
type CalibrationResult struct {
	Estimates      []entity.ItemEstimate
	SkippedItemIDs []uint
	LogLikelihood  float64
	Converged      bool
	Iterations     int
	SampleSize     int
}

// Calibrator подгоняет параметры 3PL модели по накопленной матрице ответов
// методом маргинального максимума правдоподобия (EM по Боку-Эйткину):
// E-шаг интегрирует апостериорные распределения способностей учащихся по
// квадратурной сетке, М-шаг обновляет (a, b, c) каждого вопроса Ньютоном-Рафсоном.
// Параметры живого пула не трогает — возвращает новые оценки вызывающему.
type Calibrator struct {
	config *Config
	quad   *Quadrature
}

// NewCalibrator создаёт новый калибровщик
func NewCalibrator(config *Config) *Calibrator {
	return &Calibrator{
		config: config,
		quad:   NewQuadrature(config.QuadraturePoints, config.ThetaGridMin, config.ThetaGridMax),
	}
}

// learnerVector — ответы одного учащегося: item ID -> правильность
type learnerVector map[uint]bool

// Calibrate выполняет калибровку. Вопросы с числом ответов меньше
// CalibrationMinResponses исключаются из переоценки (сохраняют прежние
// параметры) и перечисляются в SkippedItemIDs. Недостижение сходимости
// за лимит итераций — мягкий сбой: результаты возвращаются с Converged=false.
func (c *Calibrator) Calibrate(items []entity.QuestionItem, observations []entity.ResponseObservation) *CalibrationResult {
	learners, responseCounts := groupByLearner(observations)

	// Текущие параметры: стартуем с прежних значений пула
	params := make(map[uint]entity.IRTParams, len(items))
	active := make([]uint, 0, len(items))
	var skipped []uint
	for _, item := range items {
		params[item.ID] = item.IRTParams
		if responseCounts[item.ID] < c.config.CalibrationMinResponses {
			skipped = append(skipped, item.ID)
			continue
		}
		active = append(active, item.ID)
	}

	log.Printf("[Calibrator] Старт калибровки: %d учащихся, %d вопросов к переоценке, %d пропущено (мало ответов)",
		len(learners), len(active), len(skipped))

	result := &CalibrationResult{
		SkippedItemIDs: skipped,
		SampleSize:     len(learners),
	}
	if len(active) == 0 || len(learners) == 0 {
		result.Converged = true
		return result
	}

	var logLik float64
	for iter := 1; iter <= c.config.CalibrationMaxIter; iter++ {
		// E-шаг: ожидаемые количества ответивших (n) и правильных (r)
		// на каждом узле сетки для каждого вопроса
		nExp, rExp, ll := c.eStep(learners, params)
		logLik = ll

		// М-шаг: покоординатный Ньютон-Рафсон по маргинальному правдоподобию
		var maxChange float64
		for _, itemID := range active {
			updated := c.mStep(params[itemID], nExp[itemID], rExp[itemID])
			maxChange = math.Max(maxChange, paramDelta(params[itemID], updated))
			params[itemID] = updated
		}

		result.Iterations = iter
		if maxChange < c.config.CalibrationTolerance {
			result.Converged = true
			break
		}
	}
	result.LogLikelihood = logLik

	if !result.Converged {
		log.Printf("[Calibrator] EM не сошёлся за %d итераций — результаты помечены как низкодоверительные",
			c.config.CalibrationMaxIter)
	}

	// Стандартные ошибки из кривизны в точке оптимума
	nExp, rExp, _ := c.eStep(learners, params)
	for _, itemID := range active {
		p := params[itemID]
		seA, seB := c.standardErrors(p, nExp[itemID], rExp[itemID])
		result.Estimates = append(result.Estimates, entity.ItemEstimate{
			ItemID:           itemID,
			Params:           p,
			SEDiscrimination: seA,
			SEDifficulty:     seB,
			ResponseCount:    responseCounts[itemID],
		})
	}

	return result
}

// eStep возвращает ожидаемые количества по узлам сетки и маргинальное
// лог-правдоподобие при текущих параметрах
func (c *Calibrator) eStep(learners []learnerVector, params map[uint]entity.IRTParams) (nExp, rExp map[uint][]float64, logLik float64) {
	k := len(c.quad.Nodes)
	nExp = make(map[uint][]float64)
	rExp = make(map[uint][]float64)

	for _, lv := range learners {
		// Апостериорное распределение способности учащегося по сетке
		post := make([]float64, k)
		maxLog := math.Inf(-1)
		for idx, theta := range c.quad.Nodes {
			var ll float64
			for itemID, correct := range lv {
				p, found := params[itemID]
				if !found {
					continue
				}
				prob := clampProb(p.ProbabilityCorrect(theta))
				if correct {
					ll += math.Log(prob)
				} else {
					ll += math.Log(1 - prob)
				}
			}
			post[idx] = ll
			if ll > maxLog {
				maxLog = ll
			}
		}

		var norm float64
		for idx := range post {
			post[idx] = c.quad.Weights[idx] * math.Exp(post[idx]-maxLog)
			norm += post[idx]
		}
		if norm == 0 {
			continue
		}
		logLik += math.Log(norm) + maxLog

		// Накапливаем ожидаемые количества по вопросам этого учащегося
		for itemID, correct := range lv {
			if _, found := params[itemID]; !found {
				continue
			}
			if nExp[itemID] == nil {
				nExp[itemID] = make([]float64, k)
				rExp[itemID] = make([]float64, k)
			}
			for idx := range post {
				w := post[idx] / norm
				nExp[itemID][idx] += w
				if correct {
					rExp[itemID][idx] += w
				}
			}
		}
	}
	return nExp, rExp, logLik
}

// mStep обновляет параметры одного вопроса покоординатным Ньютоном-Рафсоном
// по ожидаемому лог-правдоподобию E-шага. Параметр c обновляется только при
// достаточном весе данных в асимптотической зоне и под бета-априором,
// сдвигающим оценку к малым значениям: без этого c раздувается и утягивает
// за собой difficulty лёгких вопросов.
func (c *Calibrator) mStep(p entity.IRTParams, nExp, rExp []float64) entity.IRTParams {
	if nExp == nil {
		return p
	}

	for step := 0; step < calibInnerNewtonSteps; step++ {
		p.Difficulty = c.newtonUpdate(p.Difficulty, c.quad.Nodes[0], c.quad.Nodes[len(c.quad.Nodes)-1], func(b float64) float64 {
			q := p
			q.Difficulty = b
			return c.expectedLogLik(q, nExp, rExp)
		})
		p.Discrimination = c.newtonUpdate(p.Discrimination, calibMinDiscrimination, calibMaxDiscrimination, func(a float64) float64 {
			q := p
			q.Discrimination = a
			return c.expectedLogLik(q, nExp, rExp)
		})
		if c.asymptoteWeight(p, nExp) >= calibAsymptoteMinWeight {
			p.Guessing = c.newtonUpdate(p.Guessing, 0, calibMaxGuessing, func(g float64) float64 {
				q := p
				q.Guessing = g
				return c.expectedLogLik(q, nExp, rExp) + guessingLogPrior(g)
			})
		}
	}
	return p
}

// asymptoteWeight — ожидаемое число ответивших в зоне, где кривая вопроса
// прижимается к нижней асимптоте (theta < b - 2/a)
func (c *Calibrator) asymptoteWeight(p entity.IRTParams, nExp []float64) float64 {
	a := p.Discrimination
	if a < calibMinDiscrimination {
		a = calibMinDiscrimination
	}
	cutoff := p.Difficulty - 2.0/a
	var weight float64
	for idx, theta := range c.quad.Nodes {
		if theta < cutoff {
			weight += nExp[idx]
		}
	}
	return weight
}

// guessingLogPrior — лог-плотность Beta(3, 19) на параметре угадывания
func guessingLogPrior(g float64) float64 {
	if g < 1e-6 {
		g = 1e-6
	}
	if g > 1-1e-6 {
		g = 1 - 1e-6
	}
	return (calibGuessingPriorAlpha-1)*math.Log(g) + (calibGuessingPriorBeta-1)*math.Log(1-g)
}

// newtonUpdate делает один шаг Ньютона по одной координате с численными
// производными; при ненадёжной кривизне — малый градиентный шаг
func (c *Calibrator) newtonUpdate(x, lo, hi float64, f func(float64) float64) float64 {
	h := calibDerivativeStep
	fPlus, fMinus, fX := f(x+h), f(x-h), f(x)
	d1 := (fPlus - fMinus) / (2 * h)
	d2 := (fPlus - 2*fX + fMinus) / (h * h)

	var step float64
	if d2 < -1e-12 {
		step = -d1 / d2
	} else {
		// Кривизна не отрицательна — идём по градиенту малым шагом
		step = 0.01 * d1
	}
	// Ограничение шага против перепрыгивания оптимума
	if step > 0.5 {
		step = 0.5
	} else if step < -0.5 {
		step = -0.5
	}

	x += step
	if x < lo {
		x = lo
	}
	if x > hi {
		x = hi
	}
	return x
}

// expectedLogLik — ожидаемое лог-правдоподобие вопроса по узлам сетки
func (c *Calibrator) expectedLogLik(p entity.IRTParams, nExp, rExp []float64) float64 {
	var ll float64
	for idx, theta := range c.quad.Nodes {
		if nExp[idx] == 0 {
			continue
		}
		prob := clampProb(p.ProbabilityCorrect(theta))
		ll += rExp[idx]*math.Log(prob) + (nExp[idx]-rExp[idx])*math.Log(1-prob)
	}
	return ll
}

// standardErrors оценивает SE параметров a и b из кривизны правдоподобия
func (c *Calibrator) standardErrors(p entity.IRTParams, nExp, rExp []float64) (seA, seB float64) {
	if nExp == nil {
		return 0, 0
	}
	curvature := func(f func(float64) float64, x float64) float64 {
		h := calibDerivativeStep
		return (f(x+h) - 2*f(x) + f(x-h)) / (h * h)
	}

	d2a := curvature(func(a float64) float64 {
		q := p
		q.Discrimination = a
		return c.expectedLogLik(q, nExp, rExp)
	}, p.Discrimination)
	d2b := curvature(func(b float64) float64 {
		q := p
		q.Difficulty = b
		return c.expectedLogLik(q, nExp, rExp)
	}, p.Difficulty)

	if d2a < 0 {
		seA = 1 / math.Sqrt(-d2a)
	}
	if d2b < 0 {
		seB = 1 / math.Sqrt(-d2b)
	}
	return seA, seB
}

// groupByLearner собирает наблюдения в векторы ответов по учащимся.
// Повторные ответы одного учащегося на один вопрос игнорируются (берётся первый).
func groupByLearner(observations []entity.ResponseObservation) ([]learnerVector, map[uint]int) {
	byLearner := make(map[string]learnerVector)
	order := make([]string, 0)
	counts := make(map[uint]int)

	for _, obs := range observations {
		lv, found := byLearner[obs.LearnerID]
		if !found {
			lv = make(learnerVector)
			byLearner[obs.LearnerID] = lv
			order = append(order, obs.LearnerID)
		}
		if _, dup := lv[obs.ItemID]; dup {
			continue
		}
		lv[obs.ItemID] = obs.Correct
		counts[obs.ItemID]++
	}

	learners := make([]learnerVector, 0, len(order))
	for _, id := range order {
		learners = append(learners, byLearner[id])
	}
	return learners, counts
}

// paramDelta — максимальное абсолютное изменение среди трёх параметров
func paramDelta(old, updated entity.IRTParams) float64 {
	d := math.Abs(old.Discrimination - updated.Discrimination)
	d = math.Max(d, math.Abs(old.Difficulty-updated.Difficulty))
	return math.Max(d, math.Abs(old.Guessing-updated.Guessing))
}
