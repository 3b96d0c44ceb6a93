package catengine

import (
	"log"
	"math"

	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// Методы оценки способности
const (
	EstimateMethodEAP = "eap"
	EstimateMethodMLE = "mle"
)

// Estimate — результат оценки способности учащегося
type Estimate struct {
	Theta  float64
	SE     float64
	Method string
}

// AbilityEstimator оценивает способность (theta) по истории ответов.
// Чистая функция истории: никаких побочных эффектов; сохранение результата
// в сессию — обязанность менеджера сессий.
type AbilityEstimator struct {
	config *Config
	quad   *Quadrature
}

// NewAbilityEstimator создаёт новый оценщик способности
func NewAbilityEstimator(config *Config) *AbilityEstimator {
	return &AbilityEstimator{
		config: config,
		quad:   NewQuadrature(config.QuadraturePoints, config.ThetaGridMin, config.ThetaGridMax),
	}
}

// Estimate возвращает текущую оценку способности и её стандартную ошибку.
// До MLEMinResponses ответов используется только EAP: максимум правдоподобия
// расходится на историях "все правильно"/"все неправильно", байесовская
// оценка с нормальным априорным распределением — нет.
// После MLEMinResponses пробуем Ньютона-Рафсона (быстрее); при несходимости
// или |theta| за границей откатываемся на EAP. Численные краевые случаи
// здесь восстанавливаются локально и никогда не всплывают как ошибки.
func (e *AbilityEstimator) Estimate(responses []entity.ExamResponse, params map[uint]entity.IRTParams) Estimate {
	if len(responses) == 0 {
		return Estimate{Theta: 0, SE: e.config.InitialStandardError, Method: EstimateMethodEAP}
	}

	eap := e.estimateEAP(responses, params)

	if len(responses) < e.config.MLEMinResponses {
		return eap
	}

	// Стартуем Ньютона из EAP-оценки — сходимость за 2-3 итерации в типичном случае
	theta, se, ok := e.estimateMLE(responses, params, eap.Theta)
	if !ok {
		log.Printf("[Estimator] MLE не сошёлся за %d итераций (n=%d), возврат к EAP",
			e.config.MaxNewtonIter, len(responses))
		return eap
	}
	if math.Abs(theta) > e.config.ThetaBound {
		log.Printf("[Estimator] MLE разошёлся (theta=%.2f), возврат к EAP", theta)
		return eap
	}

	return Estimate{Theta: theta, SE: se, Method: EstimateMethodMLE}
}

// estimateEAP — Expected-A-Posteriori по квадратурной сетке с априорным N(0,1).
// Правдоподобие считается в лог-пространстве со сдвигом на максимум,
// чтобы не потерять точность на длинных историях.
func (e *AbilityEstimator) estimateEAP(responses []entity.ExamResponse, params map[uint]entity.IRTParams) Estimate {
	n := len(e.quad.Nodes)
	logLik := make([]float64, n)

	maxLog := math.Inf(-1)
	for k, theta := range e.quad.Nodes {
		logLik[k] = logLikelihoodAt(theta, responses, params)
		if logLik[k] > maxLog {
			maxLog = logLik[k]
		}
	}

	// Апостериорные веса: prior * likelihood, нормированные
	var norm, mean float64
	post := make([]float64, n)
	for k := range e.quad.Nodes {
		post[k] = e.quad.Weights[k] * math.Exp(logLik[k]-maxLog)
		norm += post[k]
	}
	if norm == 0 {
		// Вырожденный случай (все правдоподобия ~0) — возвращаем априорное среднее
		return Estimate{Theta: 0, SE: e.config.InitialStandardError, Method: EstimateMethodEAP}
	}
	for k, theta := range e.quad.Nodes {
		mean += theta * post[k] / norm
	}

	var variance float64
	for k, theta := range e.quad.Nodes {
		d := theta - mean
		variance += d * d * post[k] / norm
	}

	return Estimate{Theta: mean, SE: math.Sqrt(variance), Method: EstimateMethodEAP}
}

// estimateMLE — максимум правдоподобия методом Фишер-скоринга
// (Ньютон-Рафсон с информацией Фишера в роли кривизны).
func (e *AbilityEstimator) estimateMLE(responses []entity.ExamResponse, params map[uint]entity.IRTParams, start float64) (theta, se float64, ok bool) {
	theta = start
	for iter := 0; iter < e.config.MaxNewtonIter; iter++ {
		score, info := scoreAndInformation(theta, responses, params)
		if info <= 0 {
			return 0, 0, false
		}
		step := score / info
		// Ограничиваем шаг: большие прыжки на коротких историях раскачивают итерации
		if step > 1.0 {
			step = 1.0
		} else if step < -1.0 {
			step = -1.0
		}
		theta += step

		if math.Abs(step) < e.config.NewtonTolerance {
			_, finalInfo := scoreAndInformation(theta, responses, params)
			if finalInfo <= 0 {
				return 0, 0, false
			}
			return theta, 1 / math.Sqrt(finalInfo), true
		}
	}
	return 0, 0, false
}

// logLikelihoodAt — логарифм правдоподобия истории ответов при данной theta
func logLikelihoodAt(theta float64, responses []entity.ExamResponse, params map[uint]entity.IRTParams) float64 {
	var ll float64
	for _, resp := range responses {
		p, found := params[resp.ItemID]
		if !found {
			continue
		}
		prob := clampProb(p.ProbabilityCorrect(theta))
		if resp.IsCorrect {
			ll += math.Log(prob)
		} else {
			ll += math.Log(1 - prob)
		}
	}
	return ll
}

// scoreAndInformation возвращает градиент лог-правдоподобия и суммарную
// информацию Фишера при данной theta
func scoreAndInformation(theta float64, responses []entity.ExamResponse, params map[uint]entity.IRTParams) (score, info float64) {
	for _, resp := range responses {
		p, found := params[resp.ItemID]
		if !found {
			continue
		}
		prob := clampProb(p.ProbabilityCorrect(theta))

		// dP/dtheta для 3PL через 2PL-компоненту
		logit := p.Discrimination * (theta - p.Difficulty)
		pStar := 1 / (1 + math.Exp(-logit))
		dProb := (1 - p.Guessing) * p.Discrimination * pStar * (1 - pStar)

		u := 0.0
		if resp.IsCorrect {
			u = 1.0
		}
		score += (u - prob) / (prob * (1 - prob)) * dProb
		info += p.FisherInformation(theta)
	}
	return score, info
}

// clampProb удерживает вероятность в открытом интервале (0, 1)
func clampProb(p float64) float64 {
	const eps = 1e-9
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}
