package catengine

import "math"

// Quadrature — равномерная квадратурная сетка с весами нормального
// распределения N(0,1). Стандартный приём Бока-Эйткина для численного
// интегрирования по способности.
type Quadrature struct {
	Nodes   []float64
	Weights []float64 // Нормированы: сумма = 1
}

// NewQuadrature строит сетку из points узлов на отрезке [min, max]
func NewQuadrature(points int, min, max float64) *Quadrature {
	if points < 2 {
		points = 2
	}
	nodes := make([]float64, points)
	weights := make([]float64, points)
	step := (max - min) / float64(points-1)

	var sum float64
	for k := 0; k < points; k++ {
		theta := min + float64(k)*step
		nodes[k] = theta
		weights[k] = normalPDF(theta)
		sum += weights[k]
	}
	for k := range weights {
		weights[k] /= sum
	}

	return &Quadrature{Nodes: nodes, Weights: weights}
}

// normalPDF — плотность стандартного нормального распределения
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
