package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"urlpreview/document"
)

const watchDebounce = 200 * time.Millisecond

// watch previews URLs added to path until ctx is done. URLs present when
// watching starts are not previewed.
func (a *app) watch(ctx context.Context, path string, out io.Writer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: resolve path: %w", err)
	}
	text, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	seen := make(map[string]bool)
	newURLs(string(text), seen)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	// Editors often replace the file, so watch its directory.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	a.logger.Info("watching", "file", abs, "urls", len(seen))

	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", "error", err)

		case <-timer.C:
			text, err := os.ReadFile(abs)
			if err != nil {
				a.logger.Warn("reading watched file", "file", abs, "error", err)
				continue
			}
			urls := newURLs(string(text), seen)
			if len(urls) == 0 {
				continue
			}
			a.logger.Debug("new urls", "count", len(urls))
			if _, err := fmt.Fprint(out, a.annotate(ctx, filepath.Base(abs), strings.Join(urls, "\n")+"\n")); err != nil {
				return err
			}
		}
	}
}

// newURLs returns the URLs in text not yet in seen, in order, and adds them.
func newURLs(text string, seen map[string]bool) []string {
	buf := document.New("scan", text)
	var urls []string
	for _, m := range buf.ScanAll() {
		buf.Consume(m.Anchor)
		if seen[m.URL] {
			continue
		}
		seen[m.URL] = true
		urls = append(urls, m.URL)
	}
	return urls
}
