package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
)

func testEdemaConfig() config.EdemaConfig {
	return config.EdemaConfig{
		BaselineEAR:       0.30,
		PeriorbitalWeight: 0.6,
		FacialWeight:      0.4,
		MildScore:         0.35,
		ModerateScore:     0.55,
		SevereScore:       0.75,
		MinFaceFraction:   0.08,
	}
}

// eyeContour builds a six-point eye with the given corner width and lid
// opening, centered at (cx, cy).
func eyeContour(cx, cy, width, opening float64) []Point {
	half := width / 2
	// Outer corner, two upper-lid points, inner corner, two lower-lid
	// points, matching the six-point aspect-ratio formula.
	return []Point{
		{cx - half, cy},
		{cx - width/6, cy - opening/2},
		{cx + width/6, cy - opening/2},
		{cx + half, cy},
		{cx + width/6, cy + opening/2},
		{cx - width/6, cy + opening/2},
	}
}

// texturedFrame alternates row brightness so the periorbital gradient reads
// as normal (non-swollen) skin texture.
func texturedFrame(t *testing.T) *Frame {
	t.Helper()
	const w, h = 100, 100
	pix := make([]uint8, w*h*4)
	for y := 0; y < h; y++ {
		v := uint8(96)
		if y%2 == 0 {
			v = 192
		}
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
		}
	}
	f, err := NewFrame(w, h, pix)
	require.NoError(t, err)
	return f
}

// smoothFrame is a uniform frame: zero gradient, reading as swollen skin.
func smoothFrame(t *testing.T) *Frame {
	t.Helper()
	const w, h = 100, 100
	pix := make([]uint8, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 150, 150, 150, 255
	}
	f, err := NewFrame(w, h, pix)
	require.NoError(t, err)
	return f
}

func fullFaceLandmarks(opening float64) *Landmarks {
	return &Landmarks{
		LeftEye:    eyeContour(30, 40, 24, opening),
		RightEye:   eyeContour(70, 40, 24, opening),
		FaceBounds: Rect{0, 0, 100, 100},
	}
}

func TestEyeAspectRatio(t *testing.T) {
	// Opening chosen so EAR = mean lid distance / width = 7.2/24 = 0.3.
	ear, ok := EyeAspectRatio(eyeContour(0, 0, 24, 7.2))
	require.True(t, ok)
	assert.InDelta(t, 0.30, ear, 0.001)

	_, ok = EyeAspectRatio([]Point{{0, 0}})
	assert.False(t, ok)
}

func TestEdemaNormalFaceIsNone(t *testing.T) {
	e := NewEdema(testEdemaConfig(), testLogger())

	res := e.Analyze(texturedFrame(t), fullFaceLandmarks(7.2))

	require.True(t, res.Analyzed)
	assert.Equal(t, domain.IndicatorNone, res.Severity)
	assert.GreaterOrEqual(t, res.Confidence, domain.ConfidenceGate)
	require.NotNil(t, res.Edema)
	assert.True(t, res.Edema.UsedLandmarks)
	assert.InDelta(t, 0.30, res.Edema.EyeAspectRatio, 0.001)
}

func TestEdemaSwollenFaceIsSevere(t *testing.T) {
	e := NewEdema(testEdemaConfig(), testLogger())

	// Narrowed eyes (EAR 0.1) on smooth low-texture skin.
	res := e.Analyze(smoothFrame(t), fullFaceLandmarks(2.4))

	require.True(t, res.Analyzed)
	assert.Equal(t, domain.IndicatorSevere, res.Severity)
	assert.Greater(t, res.Score, 0.75)
}

func TestEdemaScoreMonotoneInLidNarrowing(t *testing.T) {
	e := NewEdema(testEdemaConfig(), testLogger())

	frame := smoothFrame(t)
	wide := e.Analyze(frame, fullFaceLandmarks(7.2))
	narrow := e.Analyze(frame, fullFaceLandmarks(3.6))

	assert.Greater(t, narrow.Score, wide.Score)
}

func TestEdemaWithoutLandmarksStaysUnderGate(t *testing.T) {
	e := NewEdema(testEdemaConfig(), testLogger())

	res := e.Analyze(texturedFrame(t), nil)

	require.True(t, res.Analyzed)
	assert.Less(t, res.Confidence, domain.ConfidenceGate)
	require.NotNil(t, res.Edema)
	assert.False(t, res.Edema.UsedLandmarks)
}

func TestEdemaTinyFaceIsInsufficient(t *testing.T) {
	e := NewEdema(testEdemaConfig(), testLogger())

	lm := &Landmarks{FaceBounds: Rect{0, 0, 10, 10}}
	res := e.Analyze(texturedFrame(t), lm)

	assert.False(t, res.Analyzed)
	assert.Equal(t, domain.QualityInsufficient, res.Quality)
}
