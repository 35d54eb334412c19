package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/temcen/reelrank/internal/analytics"
	"github.com/temcen/reelrank/pkg/models"
)

func TestQualityRate(t *testing.T) {
	s := analytics.Signal{IWR: 1, IWCR: 0, IWHR: 0, IWWR: 0}
	assert.InDelta(t, 0.1, QualityRate(s), 1e-12)

	s = analytics.Signal{IWR: 0.5, IWCR: 0.5, IWHR: 0.5, IWWR: 0.5}
	assert.InDelta(t, 0.5, QualityRate(s), 1e-12)

	s = analytics.Signal{IWR: 0.2, IWCR: 0.9, IWHR: 0.6, IWWR: 0.4}
	assert.InDelta(t, 0.4*0.9+0.3*0.6+0.2*0.4+0.1*0.2, QualityRate(s), 1e-12)
}

func TestCohortMean(t *testing.T) {
	assert.Zero(t, CohortMean(nil))

	signals := []analytics.Signal{
		{IWR: 1, IWCR: 1, IWHR: 1, IWWR: 1},
		{IWR: 0, IWCR: 0, IWHR: 0, IWWR: 0},
	}
	assert.InDelta(t, 0.5, CohortMean(signals), 1e-12)
}

func TestShrunkScore(t *testing.T) {
	tests := []struct {
		name     string
		ciw      float64
		rate     float64
		mean     float64
		expected float64
	}{
		{name: "no watchers shrink fully to the mean", ciw: 0, rate: 0.9, mean: 0.4, expected: 40},
		{name: "equal to prior splits evenly", ciw: 500, rate: 0.8, mean: 0.4, expected: 60},
		{name: "rate equal to mean is unchanged", ciw: 123, rate: 0.3, mean: 0.3, expected: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ShrunkScore(tt.ciw, tt.rate, tt.mean, DefaultPriorStrength), 1e-9)
		})
	}

	// the cohort mean is returned exactly when nobody watched
	assert.Equal(t, 0.4*100, ShrunkScore(0, 0.9, 0.4, DefaultPriorStrength))

	// many watchers trust their own rate
	assert.InDelta(t, 90, ShrunkScore(1e12, 0.9, 0.4, DefaultPriorStrength), 1e-6)

	assert.Equal(t, 90.0, ShrunkScore(0, 0.9, 0.4, 0))
}

func TestGenreVectorsAndCosine(t *testing.T) {
	items := []models.Reel{
		{ID: "a", Genres: []string{"drama", "comedy"}},
		{ID: "b", Genres: []string{"drama"}},
		{ID: "c", Genres: []string{"horror"}},
		{ID: "d"},
	}

	vocabulary := GenreVocabulary(items)
	assert.Equal(t, map[string]int{"comedy": 0, "drama": 1, "horror": 2}, vocabulary)

	va := GenreVector(items[0].Genres, vocabulary)
	vb := GenreVector(items[1].Genres, vocabulary)
	vc := GenreVector(items[2].Genres, vocabulary)
	vd := GenreVector(items[3].Genres, vocabulary)

	assert.Equal(t, []float64{1, 1, 0}, va)
	assert.InDelta(t, 1/math.Sqrt2, Cosine(va, vb), 1e-12)
	assert.InDelta(t, 1, Cosine(vb, vb), 1e-12)
	assert.Zero(t, Cosine(va, vc))
	assert.Zero(t, Cosine(va, vd))
	assert.Zero(t, Cosine(va, []float64{1}))
}

func TestSerendipityContribution(t *testing.T) {
	assert.InDelta(t, 0.5, SerendipityContribution(50, 10), 1e-12)
	assert.Zero(t, SerendipityContribution(100, 80))
	assert.InDelta(t, 0.8, SerendipityContribution(0, 80), 1e-12)
}
