package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

const (
	ColorByAltitude = "altitude"
	ColorByBattery  = "battery"
)

type ImageFormat string

type Config struct {
	DBPath        string
	MissionID     string
	OutputFile    string
	Format        ImageFormat
	Width         int
	DroneID       int
	ColorBy       string
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validColorBy = map[string]struct{}{
	ColorByAltitude: {},
	ColorByBattery:  {},
}

func NewConfig() *Config {
	return &Config{
		Format:  ImagePNG,
		Width:   1024,
		ColorBy: ColorByAltitude,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, from, to string
	flag.StringVar(&c.DBPath, "db", "", "Path to the mission database file")
	flag.StringVar(&c.MissionID, "m", "", "Mission ID, latest mission when empty")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.IntVar(&c.Width, "w", c.Width, "Track area width in pixels")
	flag.IntVar(&c.DroneID, "drone", 0, "Render a single drone's track")
	flag.StringVar(&c.ColorBy, "color-by", c.ColorBy, "Quantity coloring the track. [altitude, battery]")
	flag.StringVar(&from, "from", "", "Exclude rows before this RFC3339 time")
	flag.StringVar(&to, "to", "", "Exclude rows after this RFC3339 time")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as the info bar and scale")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	c.ColorBy = strings.ToLower(c.ColorBy)

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, fmt.Errorf("invalid -from time: %w", err)
		}
		c.MinTimestamp = &t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, fmt.Errorf("invalid -to time: %w", err)
		}
		c.MaxTimestamp = &t
	}

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Width < 256 {
		err = errors.New("width must be at least 256 pixels")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validColorBy[c.ColorBy]; !ok {
		err = fmt.Errorf("invalid color-by quantity: %s", c.ColorBy)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
