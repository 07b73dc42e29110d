// Package config holds the static options of the lens consumers.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

const (
	DefaultSourcePrefix      = "Teleporter"
	DefaultDestinationPrefix = "Destination"
	DefaultPixelToUnitScale  = 400.0
	DefaultScreenPattern     = `Screen #\[(.*)\]`
	DefaultEmbedURL          = "https://www.youtube.com/embed/%s?rel=0&autoplay=1"
	DefaultCellSize          = 4.0
	DefaultWorkers           = 1
)

var ErrInvalidOptions = errors.New("config: invalid options")

// TeleporterOptions configures the teleport trigger
type TeleporterOptions struct {
	Enabled           bool   `yaml:"enabled"`
	SourcePrefix      string `yaml:"sourcePrefix"`
	DestinationPrefix string `yaml:"destinationPrefix"`
	// CellSize is the edge of a volume index cell, in world units
	CellSize float64 `yaml:"cellSize"`
	Workers  int     `yaml:"workers"`
}

// VideoScreenOptions configures the overlay visibility trigger
type VideoScreenOptions struct {
	Enabled bool `yaml:"enabled"`
	// PixelToUnitScale is the number of CSS pixels per world unit
	PixelToUnitScale float64 `yaml:"pixelToUnitScale"`
	// ScreenPattern matches screen entity names, its first group is the screen id
	ScreenPattern string `yaml:"screenPattern"`
	// EmbedURL is formatted with the screen id
	EmbedURL string `yaml:"embedURL"`
}

type Options struct {
	Teleporter  TeleporterOptions  `yaml:"teleporter"`
	VideoScreen VideoScreenOptions `yaml:"videoScreen"`
	// EnableVideoScreens is the legacy switch for VideoScreen.Enabled
	EnableVideoScreens bool `yaml:"enableVideoScreens"`
}

// Default returns the options used for absent keys
func Default() Options {
	return Options{
		Teleporter: TeleporterOptions{
			SourcePrefix:      DefaultSourcePrefix,
			DestinationPrefix: DefaultDestinationPrefix,
			CellSize:          DefaultCellSize,
			Workers:           DefaultWorkers,
		},
		VideoScreen: VideoScreenOptions{
			PixelToUnitScale: DefaultPixelToUnitScale,
			ScreenPattern:    DefaultScreenPattern,
			EmbedURL:         DefaultEmbedURL,
		},
	}
}

// Parse decodes YAML options over the defaults and validates them
func Parse(data []byte) (Options, error) {
	options := Default()
	if err := yaml.Unmarshal(data, &options); err != nil {
		return Options{}, fmt.Errorf("config: parse: %w", err)
	}
	options = options.withDefaults()
	if err := options.Validate(); err != nil {
		return Options{}, err
	}
	return options, nil
}

// Load reads and parses a YAML options file
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: load: %w", err)
	}
	return Parse(data)
}

// withDefaults replaces empty values, so an explicit empty prefix does not
// match every entity.
func (o Options) withDefaults() Options {
	d := Default()
	if o.Teleporter.SourcePrefix == "" {
		o.Teleporter.SourcePrefix = d.Teleporter.SourcePrefix
	}
	if o.Teleporter.DestinationPrefix == "" {
		o.Teleporter.DestinationPrefix = d.Teleporter.DestinationPrefix
	}
	if o.Teleporter.CellSize == 0 {
		o.Teleporter.CellSize = d.Teleporter.CellSize
	}
	if o.Teleporter.Workers == 0 {
		o.Teleporter.Workers = d.Teleporter.Workers
	}
	if o.VideoScreen.PixelToUnitScale == 0 {
		o.VideoScreen.PixelToUnitScale = d.VideoScreen.PixelToUnitScale
	}
	if o.VideoScreen.ScreenPattern == "" {
		o.VideoScreen.ScreenPattern = d.VideoScreen.ScreenPattern
	}
	if o.VideoScreen.EmbedURL == "" {
		o.VideoScreen.EmbedURL = d.VideoScreen.EmbedURL
	}
	if o.EnableVideoScreens {
		o.VideoScreen.Enabled = true
	}
	return o
}

func (o Options) Validate() error {
	if o.Teleporter.CellSize <= 0 {
		return fmt.Errorf("%w: teleporter.cellSize must be positive, got %v", ErrInvalidOptions, o.Teleporter.CellSize)
	}
	if o.Teleporter.Workers < 1 {
		return fmt.Errorf("%w: teleporter.workers must be at least 1, got %d", ErrInvalidOptions, o.Teleporter.Workers)
	}
	if o.VideoScreen.PixelToUnitScale <= 0 {
		return fmt.Errorf("%w: videoScreen.pixelToUnitScale must be positive, got %v", ErrInvalidOptions, o.VideoScreen.PixelToUnitScale)
	}
	pattern, err := regexp.Compile(o.VideoScreen.ScreenPattern)
	if err != nil {
		return fmt.Errorf("%w: videoScreen.screenPattern: %v", ErrInvalidOptions, err)
	}
	if pattern.NumSubexp() < 1 {
		return fmt.Errorf("%w: videoScreen.screenPattern needs a capture group", ErrInvalidOptions)
	}
	return nil
}
