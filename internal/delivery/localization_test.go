package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalizer_BreakpointTitle(t *testing.T) {
	l := NewLocalizer("en")

	tests := []struct {
		name     string
		lang     string
		genre    string
		expected string
	}{
		{name: "english", lang: "en", genre: "drama", expected: "Explore more Drama"},
		{name: "hindi", lang: "hi", genre: "comedy", expected: "और Comedy देखें"},
		{name: "regional hindi", lang: "hi-IN", genre: "comedy", expected: "और Comedy देखें"},
		{name: "accept language header", lang: "ta-IN,ta;q=0.9,en;q=0.5", genre: "action", expected: "மேலும் Action பாருங்கள்"},
		{name: "unsupported falls back", lang: "xx", genre: "drama", expected: "Explore more Drama"},
		{name: "empty falls back", lang: "", genre: "true_crime", expected: "Explore more True Crime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, l.BreakpointTitle(tt.lang, tt.genre))
		})
	}
}

func TestLocalizer_Tag(t *testing.T) {
	l := NewLocalizer("hi")

	assert.Equal(t, "hi", l.Tag("").String())
	assert.Equal(t, "bn", l.Tag("bn-BD").String())
	assert.Equal(t, "en", l.Tag("en-GB").String())

	l = NewLocalizer("not a tag")
	assert.Equal(t, "en", l.Tag("zz-invalid-!").String())
}
