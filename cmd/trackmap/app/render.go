package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

const (
	defaultTopBorder    = 48  // Title
	defaultLeftBorder   = 40  // Breathing space for the westernmost track points
	defaultBottomBorder = 96  // Info bar and value scale
	defaultRightBorder  = 40  // Breathing space for the easternmost track points

	minTrackAreaHeight = 256
	maxTrackAreaHeight = 4096

	trackBrushSize   = 2
	markerRadius     = 5
	zoneOutlineSteps = 720
)

// BorderConfig defines the white space around the track area.
type BorderConfig struct {
	Top    int
	Left   int
	Bottom int
	Right  int
}

// RenderConfig holds the visual options for the track map.
type RenderConfig struct {
	Width         int    // Track area width in pixels
	ValueLabel    string // Unit of the colored quantity, e.g. "altitude m"
	FontSize      float64
	Borders       BorderConfig
	NoAnnotations bool
}

// TrackRenderer draws mission tracks, zone outlines and detection markers
// onto a white canvas, north up.
type TrackRenderer struct {
	config RenderConfig
}

func NewTrackRenderer(config RenderConfig) (*TrackRenderer, error) {
	if config.Width < minTrackAreaHeight {
		return nil, fmt.Errorf("track area width %d is too small", config.Width)
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Borders.Top == 0 {
		config.Borders.Top = defaultTopBorder
	}
	if config.Borders.Left == 0 {
		config.Borders.Left = defaultLeftBorder
	}
	if config.Borders.Bottom == 0 {
		config.Borders.Bottom = defaultBottomBorder
	}
	if config.Borders.Right == 0 {
		config.Borders.Right = defaultRightBorder
	}

	return &TrackRenderer{config: config}, nil
}

// Render produces the finished image for one mission.
func (r *TrackRenderer) Render(data *TrackData) (*image.RGBA, error) {
	width := r.config.Width
	height := trackAreaHeight(data, width)

	fullWidth := width + r.config.Borders.Left + r.config.Borders.Right
	fullHeight := height + r.config.Borders.Top + r.config.Borders.Bottom

	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(
		r.config.Borders.Left,
		r.config.Borders.Top,
		r.config.Borders.Left+width,
		r.config.Borders.Top+height,
	)
	proj := newProjection(data, area)

	r.drawZones(img, proj, data)
	r.drawTracks(img, proj, data)
	r.drawDetections(img, proj, data)

	if !r.config.NoAnnotations {
		annotator, err := newAnnotator(annotatorConfig{
			FontSize:   r.config.FontSize,
			Borders:    r.config.Borders,
			ValueLabel: r.config.ValueLabel,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer annotator.Close()

		if err = annotator.annotate(img, data, proj); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	return img, nil
}

func (r *TrackRenderer) drawZones(img *image.RGBA, proj projection, data *TrackData) {
	for _, zone := range data.Zones {
		latPerKM := 1 / kmPerLatDegree
		lonPerKM := 1 / (kmPerLatDegree * math.Cos(zone.CenterLat*math.Pi/180))

		for step := 0; step < zoneOutlineSteps; step++ {
			angle := 2 * math.Pi * float64(step) / zoneOutlineSteps
			lat := zone.CenterLat + zone.RadiusKM*latPerKM*math.Sin(angle)
			lon := zone.CenterLon + zone.RadiusKM*lonPerKM*math.Cos(angle)
			setBrush(img, proj.point(lat, lon), 1, zoneOutlineColor)
		}
	}
}

func (r *TrackRenderer) drawTracks(img *image.RGBA, proj projection, data *TrackData) {
	for _, droneID := range data.DroneIDs {
		track := data.Tracks[droneID]
		if len(track) == 0 {
			continue
		}

		prev := proj.point(track[0].Lat, track[0].Lon)
		for _, point := range track[1:] {
			next := proj.point(point.Lat, point.Lon)
			drawLine(img, prev, next, valueColor(point.Value, data.ValueMin, data.ValueMax))
			prev = next
		}

		// Filled square at launch, hollow square at the last fix.
		start := proj.point(track[0].Lat, track[0].Lon)
		drawSquare(img, start, markerRadius-1, color.Black)
		drawSquareOutline(img, prev, markerRadius, color.Black)
	}
}

func (r *TrackRenderer) drawDetections(img *image.RGBA, proj projection, data *TrackData) {
	for _, det := range data.Detections {
		pt := proj.point(det.Latitude, det.Longitude)
		drawDiamond(img, pt, markerRadius, detectionColor(det.Type))
	}
}

// trackAreaHeight keeps the rendered ground distances proportional: one pixel
// spans the same number of meters east-west and north-south.
func trackAreaHeight(data *TrackData, width int) int {
	latSpan := data.LatMax - data.LatMin
	lonSpan := data.LonMax - data.LonMin
	if latSpan <= 0 || lonSpan <= 0 {
		return width
	}

	midLat := (data.LatMin + data.LatMax) / 2 * math.Pi / 180
	height := int(float64(width) * latSpan / (lonSpan * math.Cos(midLat)))

	return min(max(height, minTrackAreaHeight), maxTrackAreaHeight)
}

// projection maps geographic coordinates onto the track area with a
// cosine-corrected equirectangular projection.
type projection struct {
	latMin, lonMin float64
	pxPerLatDeg    float64
	pxPerLonDeg    float64
	area           image.Rectangle
}

func newProjection(data *TrackData, area image.Rectangle) projection {
	return projection{
		latMin:      data.LatMin,
		lonMin:      data.LonMin,
		pxPerLatDeg: float64(area.Dy()-1) / (data.LatMax - data.LatMin),
		pxPerLonDeg: float64(area.Dx()-1) / (data.LonMax - data.LonMin),
		area:        area,
	}
}

func (p projection) point(lat, lon float64) image.Point {
	return image.Point{
		X: p.area.Min.X + int((lon-p.lonMin)*p.pxPerLonDeg+0.5),
		Y: p.area.Max.Y - 1 - int((lat-p.latMin)*p.pxPerLatDeg+0.5),
	}
}

// drawLine plots a straight segment between two points with a small square
// brush. Out-of-bounds pixels are dropped by image.RGBA.
func drawLine(img *image.RGBA, from, to image.Point, c color.Color) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx := 1
	if from.X > to.X {
		sx = -1
	}
	sy := 1
	if from.Y > to.Y {
		sy = -1
	}

	x, y := from.X, from.Y
	err := dx + dy
	for {
		setBrush(img, image.Point{X: x, Y: y}, trackBrushSize, c)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func setBrush(img *image.RGBA, pt image.Point, size int, c color.Color) {
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			img.Set(pt.X+dx, pt.Y+dy, c)
		}
	}
}

func drawSquare(img *image.RGBA, pt image.Point, radius int, c color.Color) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			img.Set(pt.X+dx, pt.Y+dy, c)
		}
	}
}

func drawSquareOutline(img *image.RGBA, pt image.Point, radius int, c color.Color) {
	for d := -radius; d <= radius; d++ {
		img.Set(pt.X+d, pt.Y-radius, c)
		img.Set(pt.X+d, pt.Y+radius, c)
		img.Set(pt.X-radius, pt.Y+d, c)
		img.Set(pt.X+radius, pt.Y+d, c)
	}
}

func drawDiamond(img *image.RGBA, pt image.Point, radius int, c color.Color) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if abs(dx)+abs(dy) <= radius {
				img.Set(pt.X+dx, pt.Y+dy, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
