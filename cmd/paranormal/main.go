// Command paranormal composites image layers into a normal map.
//
// Each -layers file becomes a layer above the default layer, in order, and
// is scaled to the canvas. The composite is written as PNG.
//
//	paranormal -width 256 -height 256 -layers bumps.png,scratches.png -output normal.png
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/paranormal"
	_ "github.com/gogpu/paranormal/gpu" // enable GPU compositing
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		width      = flag.Int("width", 0, "canvas width (overrides config)")
		height     = flag.Int("height", 0, "canvas height (overrides config)")
		layers     = flag.String("layers", "", "comma-separated layer images, bottom first")
		shader     = flag.String("shader", "", "overlay program: "+strings.Join(paranormal.ShaderResources(), ", "))
		output     = flag.String("output", "normal.png", "output file")
		timeout    = flag.Duration("timeout", 30*time.Second, "compositing timeout")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *width, *height, *shader)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	paranormal.SetLogger(logger)

	if err := run(cfg, splitList(*layers), *output, *timeout); err != nil {
		log.Fatalf("paranormal: %v", err)
	}
}

func loadConfig(path string, width, height int, shader string) (paranormal.Config, error) {
	cfg := paranormal.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = paranormal.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if width > 0 {
		cfg.Canvas.Width = width
	}
	if height > 0 {
		cfg.Canvas.Height = height
	}
	if shader != "" {
		cfg.Filter.Shader = shader
	}
	return cfg, cfg.Validate()
}

func run(cfg paranormal.Config, layers []string, output string, timeout time.Duration) error {
	filter, err := cfg.NewFilter()
	if err != nil {
		return err
	}
	defer filter.Close()

	opts := append(cfg.DocumentOptions(), paranormal.WithFilter(filter))
	doc, err := paranormal.OpenDocument(paranormal.NewMemoryStore(), opts...)
	if err != nil {
		return err
	}
	defer doc.Close()

	// All layers form one undo step.
	doc.BeginEdit("Import layers")
	for _, path := range layers {
		r, err := paranormal.LoadBaseImage(path, doc.Size())
		if err != nil {
			return fmt.Errorf("layer %s: %w", path, err)
		}
		l, err := paranormal.NewLayerFromRaster(filepath.Base(path), r)
		if err != nil {
			return err
		}
		if err := doc.InsertLayer(doc.Root(), doc.Root().NumChildren(), l); err != nil {
			return err
		}
	}
	doc.EndEdit()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := doc.WaitForImage(ctx, doc.Generation()); err != nil {
		return err
	}
	if err := doc.RenderErr(); err != nil {
		return err
	}

	if err := doc.ExportImage().SavePNG(output); err != nil {
		return fmt.Errorf("save %s: %w", output, err)
	}
	paranormal.Logger().Info("normal map saved",
		"output", output, "size", doc.Size(), "layers", doc.Tree().Len()-1, "shader", filter.Program().Name)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
