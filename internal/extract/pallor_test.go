package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
)

func testPallorConfig() config.PallorConfig {
	return config.PallorConfig{
		HueLowDeg:          340,
		HueHighDeg:         50,
		MinTissueCoverage:  0.15,
		MildSaturation:     0.45,
		ModerateSaturation: 0.30,
		SevereSaturation:   0.18,
	}
}

// tissueFrame fills a 64x64 frame with red-hued pixels at the given
// saturation (value fixed at 0.8).
func tissueFrame(t *testing.T, saturation float64) *Frame {
	t.Helper()
	const v = 0.8
	r := uint8(255 * v)
	gb := uint8(255 * v * (1 - saturation))
	return solidFrame(t, r, gb, gb)
}

func TestPallorHealthySaturationIsNone(t *testing.T) {
	p := NewPallor(testPallorConfig(), testLogger())

	res := p.Analyze(tissueFrame(t, 0.50))

	require.True(t, res.Analyzed)
	assert.Equal(t, domain.IndicatorNone, res.Severity)
	assert.GreaterOrEqual(t, res.Confidence, domain.ConfidenceGate)
	assert.Equal(t, domain.QualityGood, res.Quality)
	require.NotNil(t, res.Pallor)
	assert.InDelta(t, 0.50, res.Pallor.MeanSaturation, 0.02)
}

func TestPallorSeverityOrdering(t *testing.T) {
	p := NewPallor(testPallorConfig(), testLogger())

	cases := []struct {
		saturation float64
		want       domain.IndicatorSeverity
	}{
		{0.50, domain.IndicatorNone},
		{0.38, domain.IndicatorMild},
		{0.24, domain.IndicatorModerate},
		{0.10, domain.IndicatorSevere},
	}
	var prevScore float64 = -1
	for _, tc := range cases {
		res := p.Analyze(tissueFrame(t, tc.saturation))
		assert.Equal(t, tc.want, res.Severity, "saturation %v", tc.saturation)
		// Lower saturation must monotonically raise the pallor score.
		assert.Greater(t, res.Score, prevScore, "saturation %v", tc.saturation)
		prevScore = res.Score
	}
}

func TestPallorNoTissueIsInsufficient(t *testing.T) {
	p := NewPallor(testPallorConfig(), testLogger())

	// Blue frame: hue far outside the tissue window.
	res := p.Analyze(solidFrame(t, 20, 40, 220))

	assert.False(t, res.Analyzed)
	assert.Equal(t, domain.QualityInsufficient, res.Quality)
}

func TestPallorLowCoverageDowngradesConfidence(t *testing.T) {
	p := NewPallor(testPallorConfig(), testLogger())

	// Only three rows inside the analyzed center region are tissue-colored;
	// coverage lands below the configured 15% minimum.
	const w, h = 64, 64
	pix := make([]uint8, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if y >= 16 && y < 19 {
				pix[i], pix[i+1], pix[i+2] = 204, 102, 102
			} else {
				pix[i], pix[i+1], pix[i+2] = 20, 40, 220
			}
			pix[i+3] = 255
		}
	}
	f, err := NewFrame(w, h, pix)
	require.NoError(t, err)

	res := p.Analyze(f)

	require.True(t, res.Analyzed)
	assert.Less(t, res.Confidence, domain.ConfidenceGate)
	require.NotNil(t, res.Pallor)
	assert.Less(t, res.Pallor.TissueCoverage, 0.15)
}

func TestPallorNilFrameIsInsufficient(t *testing.T) {
	p := NewPallor(testPallorConfig(), testLogger())
	res := p.Analyze(nil)
	assert.Equal(t, domain.QualityInsufficient, res.Quality)
}
