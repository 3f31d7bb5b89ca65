package extract

import (
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
)

// ModalityHeartRate tags heart-rate extractor results.
const ModalityHeartRate = "heart_rate"

// Signal-quality cutoffs on the spectral-peak confidence.
const (
	qualityGoodConfidence = 0.7
	qualityFairConfidence = 0.4
)

// Indicator bands for the extractor's own severity label. Calibration
// placeholders, not clinically validated cutoffs.
const (
	hrSevereHighBPM   = 130.0
	hrModerateHighBPM = 110.0
	hrMildHighBPM     = 100.0
	hrMildLowBPM      = 60.0
	hrModerateLowBPM  = 55.0
	hrSevereLowBPM    = 50.0
)

// HeartRate estimates pulse from the green-channel intensity of a frame
// stream. It accumulates one derived sample per frame in a rolling buffer
// and runs spectral analysis on a rate-limited tick, not on every frame.
//
// The buffer and the current result are exclusively owned by the capture
// goroutine driving ProcessFrame; the mutex only guards Reset racing a
// ProcessFrame in flight.
type HeartRate struct {
	fps         float64
	bufferSize  int
	minFrames   int
	minWidth    int
	minHeight   int
	minHz       float64
	maxHz       float64
	minVariance float64
	limiter     *rate.Limiter
	log         *logrus.Logger

	mu   sync.Mutex
	buf  []float64
	last *domain.ExtractorResult
}

// NewHeartRate builds the extractor from capture and band configuration.
func NewHeartRate(capCfg config.CaptureConfig, cfg config.HeartRateConfig, log *logrus.Logger) *HeartRate {
	h := &HeartRate{
		fps:         capCfg.FPS,
		bufferSize:  int(capCfg.FPS * capCfg.BufferSeconds),
		minFrames:   int(capCfg.FPS * capCfg.MinSeconds),
		minWidth:    capCfg.MinFrameWidth,
		minHeight:   capCfg.MinFrameHeight,
		minHz:       cfg.MinBPM / 60.0,
		maxHz:       cfg.MaxBPM / 60.0,
		minVariance: cfg.MinSignalVariance,
		limiter:     rate.NewLimiter(rate.Every(capCfg.AnalysisEvery), 1),
		log:         log,
	}
	log.WithFields(logrus.Fields{
		"fps":         h.fps,
		"buffer_size": h.bufferSize,
		"min_frames":  h.minFrames,
		"band_bpm":    []float64{cfg.MinBPM, cfg.MaxBPM},
	}).Info("Heart-rate extractor initialized")
	return h
}

// ProcessFrame ingests one frame and returns the current result. While the
// buffer is underfull the result carries quality "insufficient" and no
// estimate. Between analysis ticks the previous result is returned
// unchanged.
func (h *HeartRate) ProcessFrame(frame *Frame) *domain.ExtractorResult {
	if frame == nil || frame.Width < h.minWidth || frame.Height < h.minHeight {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.insufficientLocked()
	}

	green := frame.GreenMean(frame.CenterRegion())

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf = append(h.buf, green)
	if len(h.buf) > h.bufferSize {
		h.buf = h.buf[len(h.buf)-h.bufferSize:]
	}

	if len(h.buf) < h.minFrames {
		res := h.insufficientLocked()
		h.last = res
		return res
	}

	if !h.limiter.Allow() {
		if h.last != nil {
			return h.last
		}
		return h.insufficientLocked()
	}

	res := h.analyzeLocked()
	h.last = res
	return res
}

// Result returns the most recent result, or an insufficient placeholder
// before the first frame.
func (h *HeartRate) Result() *domain.ExtractorResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return h.insufficientLocked()
	}
	return h.last
}

// Reset clears the buffer and the current result atomically.
func (h *HeartRate) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
	h.last = nil
	h.log.Info("Heart-rate buffer reset")
}

func (h *HeartRate) fillPctLocked() float64 {
	if h.bufferSize == 0 {
		return 0
	}
	return math.Round(1000.0*float64(len(h.buf))/float64(h.bufferSize)) / 10.0
}

func (h *HeartRate) insufficientLocked() *domain.ExtractorResult {
	return &domain.ExtractorResult{
		Modality:  ModalityHeartRate,
		Quality:   domain.QualityInsufficient,
		HeartRate: &domain.HeartRateBiomarkers{BufferFillPct: h.fillPctLocked()},
	}
}

func (h *HeartRate) poorLocked() *domain.ExtractorResult {
	return &domain.ExtractorResult{
		Modality:  ModalityHeartRate,
		Quality:   domain.QualityPoor,
		HeartRate: &domain.HeartRateBiomarkers{BufferFillPct: h.fillPctLocked()},
	}
}

// analyzeLocked runs one spectral pass over the buffer: mean removal, Hann
// window, real FFT, magnitude peak inside the physiological band.
func (h *HeartRate) analyzeLocked() *domain.ExtractorResult {
	data := make([]float64, len(h.buf))
	copy(data, h.buf)

	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	var variance float64
	for i, v := range data {
		d := v - mean
		data[i] = d
		variance += d * d
	}
	variance /= float64(len(data))
	if variance < h.minVariance {
		// Flat signal: no pulse modulation reached the camera. A guess here
		// could mask tachycardia or bradycardia, so refuse instead.
		return h.poorLocked()
	}

	window.Hann(data)

	fft := fourier.NewFFT(len(data))
	coeffs := fft.Coefficients(nil, data)

	peakHz, confidence := h.bandPeak(fft, coeffs, len(data))
	if peakHz == 0 {
		return h.poorLocked()
	}

	bpm := math.Round(peakHz*60.0*10.0) / 10.0
	quality := domain.QualityPoor
	switch {
	case confidence >= qualityGoodConfidence:
		quality = domain.QualityGood
	case confidence >= qualityFairConfidence:
		quality = domain.QualityFair
	}

	res := &domain.ExtractorResult{
		Modality:   ModalityHeartRate,
		Score:      clamp01((peakHz*60.0 - h.minHz*60.0) / (h.maxHz*60.0 - h.minHz*60.0)),
		Confidence: math.Round(confidence*100) / 100,
		Severity:   severityForBPM(bpm),
		Quality:    quality,
		Analyzed:   true,
		HeartRate: &domain.HeartRateBiomarkers{
			DominantFreqHz: peakHz,
			PeakToAvgRatio: confidence,
			BufferFillPct:  h.fillPctLocked(),
		},
	}
	h.log.WithFields(logrus.Fields{
		"bpm":        bpm,
		"confidence": res.Confidence,
		"quality":    quality.String(),
	}).Debug("Heart-rate analysis pass")
	return res
}

// bandPeak finds the dominant in-band frequency and derives confidence from
// the peak's prominence over the in-band median magnitude.
func (h *HeartRate) bandPeak(fft *fourier.FFT, coeffs []complex128, n int) (float64, float64) {
	var (
		peakHz  float64
		peakMag float64
		mags    []float64
	)
	for i, c := range coeffs {
		hz := fft.Freq(i) * h.fps
		if hz < h.minHz || hz > h.maxHz {
			continue
		}
		mag := math.Hypot(real(c), imag(c))
		mags = append(mags, mag)
		if mag > peakMag {
			peakMag = mag
			peakHz = hz
		}
	}
	if len(mags) == 0 || peakMag == 0 {
		return 0, 0
	}
	if len(mags) == 1 {
		return peakHz, 0.5
	}

	sort.Float64s(mags)
	median := mags[len(mags)/2]
	if median <= 0 {
		return peakHz, 0.5
	}
	return peakHz, clamp01((peakMag - median) / peakMag)
}

func severityForBPM(bpm float64) domain.IndicatorSeverity {
	switch {
	case bpm > hrSevereHighBPM || bpm < hrSevereLowBPM:
		return domain.IndicatorSevere
	case bpm > hrModerateHighBPM || bpm < hrModerateLowBPM:
		return domain.IndicatorModerate
	case bpm > hrMildHighBPM || bpm < hrMildLowBPM:
		return domain.IndicatorMild
	default:
		return domain.IndicatorNone
	}
}
