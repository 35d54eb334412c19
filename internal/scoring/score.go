package scoring

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/temcen/reelrank/internal/analytics"
	"github.com/temcen/reelrank/pkg/models"
)

// DefaultPriorStrength is the Bayesian prior weight M, in watchers.
const DefaultPriorStrength = 500.0

// QualityRate combines the four watch rates of an item.
func QualityRate(s analytics.Signal) float64 {
	return 0.4*s.IWCR + 0.3*s.IWHR + 0.2*s.IWWR + 0.1*s.IWR
}

// CohortMean is the mean quality rate over one fetch batch.
func CohortMean(signals []analytics.Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	rates := make([]float64, len(signals))
	for i, s := range signals {
		rates[i] = QualityRate(s)
	}
	return floats.Sum(rates) / float64(len(rates))
}

// ShrunkScore shrinks an item's rate toward the cohort mean in proportion to
// how few intentional watchers it has, scaled to [0,100] for rates in [0,1].
func ShrunkScore(ciw, rate, cohortMean, priorStrength float64) float64 {
	if ciw < 0 {
		ciw = 0
	}
	total := ciw + priorStrength
	if total == 0 {
		return 100 * rate
	}
	return 100 * ((ciw/total)*rate + (priorStrength/total)*cohortMean)
}

// GenreVocabulary indexes every genre across items in sorted order.
func GenreVocabulary(items []models.Reel) map[string]int {
	seen := make(map[string]struct{})
	for _, item := range items {
		for _, g := range item.Genres {
			seen[g] = struct{}{}
		}
	}
	genres := make([]string, 0, len(seen))
	for g := range seen {
		genres = append(genres, g)
	}
	sort.Strings(genres)

	index := make(map[string]int, len(genres))
	for i, g := range genres {
		index[g] = i
	}
	return index
}

// GenreVector is the binary membership vector of genres over vocabulary.
func GenreVector(genres []string, vocabulary map[string]int) []float64 {
	vec := make([]float64, len(vocabulary))
	for _, g := range genres {
		if i, ok := vocabulary[g]; ok {
			vec[i] = 1
		}
	}
	return vec
}

// Cosine similarity of two equal-length vectors. A zero vector is similar to
// nothing.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// SerendipityContribution rewards popular neighbours that are not too close.
func SerendipityContribution(neighborSimilarity, neighborStatistical float64) float64 {
	return (100 - neighborSimilarity) * neighborStatistical / 10000
}
