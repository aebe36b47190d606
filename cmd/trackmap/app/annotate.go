package app

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi      = 96.0
	fontSize = 12.0

	scaleBarWidth  = 256
	scaleBarHeight = 10
)

type annotatorConfig struct {
	FontSize   float64
	Borders    BorderConfig
	ValueLabel string
}

// annotator writes the title, drone labels, info bar and value scale onto a
// rendered track map.
type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, data *TrackData, proj projection) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTitle(img, data); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}
	if err := a.drawDroneLabels(data, proj); err != nil {
		return fmt.Errorf("drawing drone labels: %w", err)
	}
	if err := a.drawInfoBar(img, data); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	if err := a.drawValueScale(img, data); err != nil {
		return fmt.Errorf("drawing value scale: %w", err)
	}
	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, data *TrackData) error {
	title := fmt.Sprintf("Mission %s, team %s", data.MissionID, data.TeamID)

	textY := (a.config.Borders.Top + a.fontHeight()) / 2
	_, err := a.context.DrawString(title, freetype.Pt(a.config.Borders.Left, textY))
	return err
}

// drawDroneLabels puts the drone ID next to each launch marker.
func (a *annotator) drawDroneLabels(data *TrackData, proj projection) error {
	for _, droneID := range data.DroneIDs {
		track := data.Tracks[droneID]
		if len(track) == 0 {
			continue
		}

		start := proj.point(track[0].Lat, track[0].Lon)
		pt := freetype.Pt(start.X+markerRadius+3, start.Y-markerRadius)
		if _, err := a.context.DrawString(fmt.Sprintf("D%d", droneID), pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *TrackData) error {
	var sb strings.Builder

	if data.Points > 0 {
		sb.WriteString(fmt.Sprintf("Time: %s - %s",
			data.TimestampStart.Local().Format(time.DateTime),
			data.TimestampEnd.Local().Format(time.DateTime)))
		sb.WriteString("; ")
	}

	ew, ns := data.SpanMeters()
	sb.WriteString(fmt.Sprintf("Area: %s x %s", humanMeters(ew), humanMeters(ns)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%s points", humanize.Comma(int64(data.Points))))

	if len(data.Detections) > 0 {
		sb.WriteString("; ")
		sb.WriteString(fmt.Sprintf("%d detections", len(data.Detections)))
	}

	textY := img.Bounds().Max.Y - a.config.Borders.Bottom + a.fontHeight() + 4
	_, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY))
	return err
}

// drawValueScale renders the hue gradient with its bounds, so the reader can
// tie track colors back to values.
func (a *annotator) drawValueScale(img *image.RGBA, data *TrackData) error {
	if data.ValueMax <= data.ValueMin {
		return nil
	}

	barLeft := a.config.Borders.Left
	barTop := img.Bounds().Max.Y - scaleBarHeight - 12

	for x := 0; x < scaleBarWidth; x++ {
		value := data.ValueMin + float64(x)/float64(scaleBarWidth-1)*(data.ValueMax-data.ValueMin)
		c := valueColor(value, data.ValueMin, data.ValueMax)
		for y := 0; y < scaleBarHeight; y++ {
			img.Set(barLeft+x, barTop+y, c)
		}
	}

	label := fmt.Sprintf("%0.1f to %0.1f %s", data.ValueMin, data.ValueMax, a.config.ValueLabel)
	pt := freetype.Pt(barLeft+scaleBarWidth+8, barTop+scaleBarHeight)
	_, err := a.context.DrawString(label, pt)
	return err
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func humanMeters(m float64) string {
	value, suffix := humanize.ComputeSI(m)
	return fmt.Sprintf("%0.1f %sm", value, suffix)
}
