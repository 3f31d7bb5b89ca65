// Package extract derives per-modality screening signals from camera
// frames: heart rate from a frame stream, pallor and edema from single
// stills. Extractors return a fresh result on every analysis pass and never
// mutate a previously returned one.
package extract

import (
	"fmt"
	"math"
)

// Frame is an RGBA image buffer with batch pixel statistics. Callers never
// index individual pixels; all scanning happens inside the row-oriented
// accessors below.
type Frame struct {
	Width  int
	Height int
	// Pix holds 4 bytes per pixel (R, G, B, A), row-major.
	Pix []uint8
}

// NewFrame validates buffer geometry and wraps it.
func NewFrame(width, height int, pix []uint8) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame dimensions must be positive, got %dx%d", width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("pixel buffer length %d does not match %dx%d RGBA", len(pix), width, height)
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// Rect is a half-open pixel region [X0,X1) x [Y0,Y1).
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Dx returns the region width.
func (r Rect) Dx() int { return r.X1 - r.X0 }

// Dy returns the region height.
func (r Rect) Dy() int { return r.Y1 - r.Y0 }

// Area returns the pixel count of the region.
func (r Rect) Area() int { return r.Dx() * r.Dy() }

// Bounds returns the full-frame region.
func (f *Frame) Bounds() Rect { return Rect{0, 0, f.Width, f.Height} }

// CenterRegion returns the middle half of the frame in both dimensions, the
// approximate forehead/cheek area when the subject fills the viewfinder.
func (f *Frame) CenterRegion() Rect {
	mx, my := f.Width/4, f.Height/4
	return Rect{X0: mx, Y0: my, X1: f.Width - mx, Y1: f.Height - my}
}

func (f *Frame) clip(r Rect) Rect {
	if r.X0 < 0 {
		r.X0 = 0
	}
	if r.Y0 < 0 {
		r.Y0 = 0
	}
	if r.X1 > f.Width {
		r.X1 = f.Width
	}
	if r.Y1 > f.Height {
		r.Y1 = f.Height
	}
	if r.X1 < r.X0 {
		r.X1 = r.X0
	}
	if r.Y1 < r.Y0 {
		r.Y1 = r.Y0
	}
	return r
}

// GreenMean returns the mean green-channel value over a region. Green
// carries the strongest photoplethysmography signal on phone cameras.
func (f *Frame) GreenMean(r Rect) float64 {
	r = f.clip(r)
	if r.Area() == 0 {
		return 0
	}
	var sum uint64
	for y := r.Y0; y < r.Y1; y++ {
		row := f.Pix[(y*f.Width+r.X0)*4 : (y*f.Width+r.X1)*4]
		for i := 1; i < len(row); i += 4 {
			sum += uint64(row[i])
		}
	}
	return float64(sum) / float64(r.Area())
}

// HSVStats summarizes a region against a tissue hue window. The window may
// wrap around 0 degrees (e.g. 340..50 for red/pink tissue). Dark pixels are
// ignored for tissue classification.
type HSVStats struct {
	// Coverage is the fraction of region pixels classified as tissue.
	Coverage float64
	// MeanSaturation is averaged over tissue pixels only.
	MeanSaturation float64
	// HueRatio is tissue pixels over all non-dark pixels.
	HueRatio float64
}

const (
	minTissueValue      = 0.15 // pixels darker than this are never tissue
	minTissueSaturation = 0.02 // achromatic pixels have no meaningful hue
)

// TissueStats scans a region and classifies pixels into the hue window.
func (f *Frame) TissueStats(r Rect, hueLowDeg, hueHighDeg float64) HSVStats {
	r = f.clip(r)
	if r.Area() == 0 {
		return HSVStats{}
	}

	var tissue, lit int
	var satSum float64
	for y := r.Y0; y < r.Y1; y++ {
		row := f.Pix[(y*f.Width+r.X0)*4 : (y*f.Width+r.X1)*4]
		for i := 0; i+3 < len(row); i += 4 {
			h, s, v := rgbToHSV(row[i], row[i+1], row[i+2])
			if v < minTissueValue {
				continue
			}
			lit++
			if s >= minTissueSaturation && hueInWindow(h, hueLowDeg, hueHighDeg) {
				tissue++
				satSum += s
			}
		}
	}

	stats := HSVStats{Coverage: float64(tissue) / float64(r.Area())}
	if tissue > 0 {
		stats.MeanSaturation = satSum / float64(tissue)
	}
	if lit > 0 {
		stats.HueRatio = float64(tissue) / float64(lit)
	}
	return stats
}

// BrightnessGradient returns the mean absolute vertical luminance gradient
// over a region, normalized to [0,1]. Swollen periorbital skin is smooth and
// yields a low gradient.
func (f *Frame) BrightnessGradient(r Rect) float64 {
	r = f.clip(r)
	if r.Dy() < 2 || r.Dx() == 0 {
		return 0
	}
	var sum float64
	var count int
	for y := r.Y0; y < r.Y1-1; y++ {
		rowA := f.Pix[(y*f.Width+r.X0)*4 : (y*f.Width+r.X1)*4]
		rowB := f.Pix[((y+1)*f.Width+r.X0)*4 : ((y+1)*f.Width+r.X1)*4]
		for i := 0; i+3 < len(rowA); i += 4 {
			la := luminance(rowA[i], rowA[i+1], rowA[i+2])
			lb := luminance(rowB[i], rowB[i+1], rowB[i+2])
			sum += math.Abs(la - lb)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return clamp01(sum / float64(count) / 255.0 * 8.0)
}

// RowBrightness returns per-row mean luminance over a region, one value per
// row, for coarse eye-band localization without landmarks.
func (f *Frame) RowBrightness(r Rect) []float64 {
	r = f.clip(r)
	if r.Area() == 0 {
		return nil
	}
	rows := make([]float64, 0, r.Dy())
	for y := r.Y0; y < r.Y1; y++ {
		row := f.Pix[(y*f.Width+r.X0)*4 : (y*f.Width+r.X1)*4]
		var sum float64
		for i := 0; i+3 < len(row); i += 4 {
			sum += luminance(row[i], row[i+1], row[i+2])
		}
		rows = append(rows, sum/float64(r.Dx()))
	}
	return rows
}

func luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// rgbToHSV converts one pixel. Hue is in degrees [0,360), saturation and
// value in [0,1].
func rgbToHSV(r, g, b uint8) (h, s, v float64) {
	rf, gf, bf := float64(r)/255.0, float64(g)/255.0, float64(b)/255.0
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	v = max
	delta := max - min
	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}
	switch max {
	case rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// hueInWindow handles windows that wrap around 0 degrees.
func hueInWindow(h, low, high float64) bool {
	if low <= high {
		return h >= low && h <= high
	}
	return h >= low || h <= high
}

// Point is a 2D landmark coordinate in pixel space.
type Point struct {
	X, Y float64
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Landmarks is an optional facial landmark set supplied by the capture
// layer. Each eye uses the standard six-point contour: outer corner, two
// upper-lid points, inner corner, two lower-lid points, in that order.
type Landmarks struct {
	LeftEye  []Point
	RightEye []Point
	// FaceBounds is the detected face region in frame coordinates.
	FaceBounds Rect
}

// EyeAspectRatio computes the standard six-point EAR: the mean of the two
// vertical lid distances over twice the corner-to-corner width. Returns
// false when a contour is malformed.
func EyeAspectRatio(eye []Point) (float64, bool) {
	if len(eye) != 6 {
		return 0, false
	}
	width := dist(eye[0], eye[3])
	if width == 0 {
		return 0, false
	}
	v1 := dist(eye[1], eye[5])
	v2 := dist(eye[2], eye[4])
	return (v1 + v2) / (2 * width), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
