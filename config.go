package paranormal

import (
	"bytes"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the TOML configuration read by the paranormal command.
//
// Example:
//
//	[canvas]
//	width = 1024
//	height = 1024
//	base_image = "textures/brick.png"
//
//	[brush]
//	color = [0.5, 0.5, 1.0, 1.0]
//	size = 30
//
//	[filter]
//	shader = "SpriteOverlay"
//	gpu = true
//
//	[log]
//	level = "debug"
type Config struct {
	Canvas     CanvasConfig  `toml:"canvas"`
	Brush      BrushConfig   `toml:"brush"`
	Filter     FilterConfig  `toml:"filter"`
	History    HistoryConfig `toml:"history"`
	Log        LogConfig     `toml:"log"`
	Refraction float32       `toml:"refraction"`
}

// CanvasConfig sets the canvas of new documents.
type CanvasConfig struct {
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	BaseImage string `toml:"base_image"`
	WatchBase bool   `toml:"watch_base_image"`
}

// BrushConfig sets the initial brush preferences. Color components are in
// [0, 1], non-premultiplied.
type BrushConfig struct {
	Color          [4]float32 `toml:"color"`
	Size           float32    `toml:"size"`
	Opacity        float32    `toml:"opacity"`
	Hardness       float32    `toml:"hardness"`
	GaussianRadius float32    `toml:"gaussian_radius"`
}

// FilterConfig selects the overlay filter.
type FilterConfig struct {
	Shader  string `toml:"shader"`
	Workers int    `toml:"workers"` // 0 shares a GOMAXPROCS-sized pool
	GPU     bool   `toml:"gpu"`
}

// HistoryConfig sets the undo depth.
type HistoryConfig struct {
	Limit int `toml:"limit"`
}

// LogConfig sets the log level: debug, info, warn, or error.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	p := DefaultPreferences()
	return Config{
		Canvas: CanvasConfig{Width: DefaultCanvasSize.Width, Height: DefaultCanvasSize.Height},
		Brush: BrushConfig{
			Color:          nrgbaToFloats(p.Color),
			Size:           p.BrushSize,
			Opacity:        p.BrushOpacity,
			Hardness:       p.BrushHardness,
			GaussianRadius: p.GaussianRadius,
		},
		Filter:     FilterConfig{Shader: DefaultShaderResource, GPU: true},
		History:    HistoryConfig{Limit: DefaultHistoryLimit},
		Log:        LogConfig{Level: "warn"},
		Refraction: DefaultIndexOfRefraction,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return Config{}, fmt.Errorf("paranormal: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("paranormal: config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML on top of DefaultConfig and validates the result.
// Unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if !(Size{Width: c.Canvas.Width, Height: c.Canvas.Height}).Valid() {
		return fmt.Errorf("%w: canvas %dx%d", ErrInvalidSize, c.Canvas.Width, c.Canvas.Height)
	}
	for i, v := range c.Brush.Color {
		if v < 0 || v > 1 {
			return fmt.Errorf("paranormal: brush color component %d = %v, want [0, 1]", i, v)
		}
	}
	if c.Brush.Opacity < 0 || c.Brush.Opacity > 1 {
		return fmt.Errorf("paranormal: brush opacity %v, want [0, 1]", c.Brush.Opacity)
	}
	if c.Brush.Hardness < 0 || c.Brush.Hardness > 1 {
		return fmt.Errorf("paranormal: brush hardness %v, want [0, 1]", c.Brush.Hardness)
	}
	if c.Brush.Size <= 0 {
		return fmt.Errorf("paranormal: brush size %v, want > 0", c.Brush.Size)
	}
	if _, ok := shaderResources[c.Filter.Shader]; !ok {
		return fmt.Errorf("%w: %q", ErrShaderResourceNotFound, c.Filter.Shader)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Preferences converts the brush section.
func (c Config) Preferences() Preferences {
	return Preferences{
		Color:          floatsToNRGBA(c.Brush.Color),
		BrushSize:      c.Brush.Size,
		BrushOpacity:   c.Brush.Opacity,
		BrushHardness:  c.Brush.Hardness,
		GaussianRadius: c.Brush.GaussianRadius,
	}
}

// NewFilter builds the configured overlay filter.
func (c Config) NewFilter() (*OverlayFilter, error) {
	var opts []FilterOption
	if c.Filter.Workers > 0 {
		opts = append(opts, WithWorkers(c.Filter.Workers))
	}
	if !c.Filter.GPU {
		opts = append(opts, WithoutGPU())
	}
	return NewOverlayFilterFromResource(c.Filter.Shader, opts...)
}

// DocumentOptions converts the canvas, brush, history, and refraction
// settings. The filter is not included; see NewFilter.
func (c Config) DocumentOptions() []DocumentOption {
	opts := []DocumentOption{
		WithCanvasSize(c.Canvas.Width, c.Canvas.Height),
		WithPreferences(c.Preferences()),
		WithHistoryLimit(c.History.Limit),
		WithRefraction(c.Refraction),
	}
	if c.Canvas.BaseImage != "" {
		opts = append(opts, WithBaseImagePath(c.Canvas.BaseImage))
		if c.Canvas.WatchBase {
			opts = append(opts, WithBaseImageWatch())
		}
	}
	return opts
}

// LogLevel returns the configured slog level.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelWarn, fmt.Errorf("paranormal: log level %q: %w", s, err)
	}
	return l, nil
}

func nrgbaToFloats(c color.NRGBA) [4]float32 {
	return [4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255}
}

func floatsToNRGBA(f [4]float32) color.NRGBA {
	b := func(v float32) uint8 { return uint8(v*255 + 0.5) }
	return color.NRGBA{R: b(f[0]), G: b(f[1]), B: b(f[2]), A: b(f[3])}
}
