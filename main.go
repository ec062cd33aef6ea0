// urlpreview finds URLs in text and renders a preview of each one next to
// it, using pattern-matched modules and an on-disk content cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"urlpreview/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	verbose    bool
}

func (g *globalFlags) app() (*app, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, newLogger(g.verbose))
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "urlpreview",
		Short: "Preview the URLs found in text",
		Long: `urlpreview scans text for URLs and inserts a short preview after each
one: repository stats for GitHub links, titles for Hacker News, Reddit,
YouTube and Wikipedia, image sizes, or page metadata.

Fetched content is cached under the user cache directory and reused.

Configuration:
  Config file: ~/.config/url-preview/config.toml
  Generate with: urlpreview init-config > ~/.config/url-preview/config.toml`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default ~/.config/url-preview/config.toml)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		annotateCmd(g),
		watchCmd(g),
		modulesCmd(g),
		cacheCmd(g),
		initConfigCmd(),
	)
	return cmd
}

func annotateCmd(g *globalFlags) *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "annotate FILE|-",
		Short: "Print FILE with previews inserted after each URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			name, text, err := readInput(args[0])
			if err != nil {
				return err
			}

			out := a.annotate(cmd.Context(), name, text)
			if inPlace && args[0] != "-" {
				return writeFileAtomic(args[0], []byte(out))
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "rewrite FILE instead of printing")
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Print previews for URLs as they are added to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			return a.watch(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
}

func modulesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List preview modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENABLED\tPATTERN")
			for _, m := range a.registry.List() {
				fmt.Fprintf(w, "%s\t%t\t%s\n", m.Name, m.Enabled, m.Pattern)
			}
			return w.Flush()
		},
	}
}

func cacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the content cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path URL",
			Short: "Print the cache file for URL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := g.app()
				if err != nil {
					return err
				}
				state := "missing"
				if a.cache.Exists(args[0]) {
					state = "cached"
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.cache.Path(args[0]), state)
				return err
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every cached entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := g.app()
				if err != nil {
					return err
				}
				n, err := a.cache.Clear()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s\n", n, a.cache.Dir())
				return err
			},
		},
	)
	return cmd
}

func initConfigCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Print the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !write {
				_, err := fmt.Fprint(cmd.OutOrStdout(), config.DefaultTOML())
				return err
			}
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating config dir: %w", err)
			}
			if err := os.WriteFile(path, []byte(config.DefaultTOML()), 0o644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write to the config path instead of stdout")
	return cmd
}

func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".urlpreview-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
