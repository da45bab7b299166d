package vectorindex

import (
	"fmt"
	"math"
	"strings"
)

// Metric pairs a distance with the score reported for it. Score must grow as
// distance shrinks; whether its range is meaningful depends on the metric.
type Metric struct {
	Name     string
	Distance func(a, b []float64) float64
	Score    func(distance float64) float64
}

// Cosine distance is 1 - cos(a, b), in [0, 2]. Its score 1 - d is the cosine
// similarity, in [-1, 1].
var Cosine = Metric{
	Name: "cosine",
	Distance: func(a, b []float64) float64 {
		return 1 - cosineSimilarity(a, b)
	},
	Score: oneMinus,
}

// InnerProduct distance is 1 - a.b. Only normalized vectors keep 1 - d in [-1, 1].
var InnerProduct = Metric{
	Name: "inner_product",
	Distance: func(a, b []float64) float64 {
		return 1 - dot(a, b)
	},
	Score: oneMinus,
}

// Euclidean distance is unbounded, so it scores as 1 / (1 + d), in (0, 1].
var Euclidean = Metric{
	Name: "euclidean",
	Distance: func(a, b []float64) float64 {
		if len(a) != len(b) {
			return math.Inf(1)
		}
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	},
	Score: func(distance float64) float64 {
		return 1 / (1 + distance)
	},
}

func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Cosine.Name:
		return Cosine, nil
	case InnerProduct.Name:
		return InnerProduct, nil
	case Euclidean.Name:
		return Euclidean, nil
	}
	return Metric{}, fmt.Errorf("unsupported index metric: %s", name)
}

func oneMinus(distance float64) float64 {
	return 1 - distance
}

func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var d, normA, normB float64
	for i := range a {
		d += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return d / (math.Sqrt(normA) * math.Sqrt(normB))
}
