package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/nidar-uav/ground-control/internal/telemetry"
)

const (
	hueStart = 236.0
	hueEnd   = 0.0
)

var (
	zoneOutlineColor = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	humanMarkerColor = color.RGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff}
	cropMarkerColor  = color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
	otherMarkerColor = color.RGBA{R: 0x6a, G: 0x1b, B: 0x9a, A: 0xff}
)

// valueColor maps a track value onto the blue-to-red hue sweep. Low values
// render cold, high values hot.
func valueColor(value, minValue, maxValue float64) color.Color {
	span := maxValue - minValue
	if span <= 0 {
		return colorful.Hsv(hueStart, 1, 0.90)
	}

	hPerUnit := (hueStart - hueEnd) / span
	hue := hueStart - (value-minValue)*hPerUnit
	hue = math.Min(math.Max(hue, hueEnd), hueStart)

	return colorful.Hsv(hue, 1, 0.90)
}

func detectionColor(detType string) color.Color {
	switch detType {
	case string(telemetry.DetectionHuman):
		return humanMarkerColor
	case string(telemetry.DetectionCrop):
		return cropMarkerColor
	default:
		return otherMarkerColor
	}
}
