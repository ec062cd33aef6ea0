package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"urlpreview/cache"
	"urlpreview/config"
	"urlpreview/document"
	"urlpreview/fetcher"
	"urlpreview/preview"
)

// app is the assembled preview pipeline.
type app struct {
	cfg        *config.Config
	logger     *log.Logger
	cache      *cache.Cache
	registry   *preview.Registry
	dispatcher *preview.Dispatcher
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "url-preview",
		Level:  level,
	})
}

func newApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	fetcher.Configure(fetcher.Options{
		UserAgent:      cfg.Fetcher.UserAgent,
		TimeoutSeconds: cfg.Fetcher.TimeoutSeconds,
		ChromePath:     cfg.Fetcher.ChromePath,
	})
	var retriever fetcher.Retriever = &fetcher.HTTP{}
	if cfg.Fetcher.UseBrowser {
		retriever = &fetcher.Smart{HTTP: retriever, Browser: &fetcher.Browser{Headless: true}}
	}

	registry := preview.NewRegistry()
	preview.DefineBuiltins(registry)
	for _, t := range cfg.Templates {
		m, err := preview.NewTemplateModule(preview.TemplateSpec{
			Name:      t.Name,
			Pattern:   t.Pattern,
			Rewrite:   t.Rewrite,
			Headers:   t.Headers,
			Fields:    t.Fields,
			Selectors: t.Selectors,
			Format:    t.Format,
			Disabled:  t.Disabled,
		})
		if err != nil {
			return nil, err
		}
		if !registry.Define(m) {
			logger.Warn("template module shadowed by built-in", "name", t.Name)
		}
	}
	for _, m := range registry.List() {
		if cfg.ModuleEnabled(m.Name, m.Enabled) {
			registry.Enable(m.Name)
		} else {
			registry.Disable(m.Name)
		}
	}

	f := fetcher.New(c, retriever, logger.WithPrefix("fetch"))
	d := preview.NewDispatcher(registry, f, c, preview.Options{
		Prefix:         cfg.Display.Prefix,
		PostRenderHook: cfg.Display.PostRenderHook,
		Logger:         logger,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		cache:      c,
		registry:   registry,
		dispatcher: d,
	}, nil
}

// annotate previews every URL in text and returns it with the previews
// rendered in place.
func (a *app) annotate(ctx context.Context, name, text string) string {
	buf := document.New(name, text)
	rendered := 0
	buf.AddHook(a.cfg.Display.PostRenderHook, func(*document.Buffer) { rendered++ })

	n := a.dispatcher.Preview(ctx, buf, 0, buf.Len())
	a.dispatcher.Wait()
	a.logger.Debug("annotated", "name", name, "dispatches", n, "rendered", rendered)
	return buf.String()
}

func readInput(path string) (string, string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return "stdin", string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	return filepath.Base(path), string(data), nil
}
