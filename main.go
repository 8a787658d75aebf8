package main

import (
	"os"
	"strings"

	"livereload/config"
	"livereload/fingerprint"

	"github.com/rohanthewiz/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "livereload",
	Short: "Reload browsers when watched theme and plugin files change",
	Long: `livereload fingerprints CSS, JS and PHP/HTML files under the watched
directories and streams the fingerprints to connected pages over
Server-Sent Events. Pages reload fully when markup or an included script
changes, and refetch only the changed stylesheets otherwise.

Settings come from LIVERELOAD_* environment variables (and a .env file);
flags override them.`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.SortFlags = false
	f.String("watch-file", "", "YAML watch registry (default livereload.yaml)")
	f.String("dir", "", "directory to watch when there is no watch file")
	f.String("url", "", "public URL serving --dir")
	f.Int("max-depth", 0, "directory levels below each root to descend (default 3)")
	f.StringSlice("exclude", nil, "path patterns to skip (default node_modules)")
	f.String("match", "", "how changed URIs match page resources: substring|strict")

	rootCmd.AddCommand(serveCmd, scanCmd, checkCmd)
}

// loadConfig reads env settings and applies any flags the user set
func loadConfig(cmd *cobra.Command) *config.Config {
	config.Initialize()
	cfg := config.Get()

	flags := cmd.Flags()
	if flags.Changed("watch-file") {
		cfg.WatchFile, _ = flags.GetString("watch-file")
	}
	if flags.Changed("dir") {
		cfg.Dir, _ = flags.GetString("dir")
	}
	if flags.Changed("url") {
		u, _ := flags.GetString("url")
		cfg.URL = strings.TrimRight(u, "/")
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("exclude") {
		cfg.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("match") {
		cfg.Match, _ = flags.GetString("match")
	}
	return cfg
}

// newFingerprinter builds the scanner for the configured watch set
func newFingerprinter(cfg *config.Config) (*fingerprint.Fingerprinter, config.Watch, error) {
	w, err := cfg.LoadWatch()
	if err != nil {
		return nil, w, err
	}
	if len(w.Roots) == 0 {
		logger.Warn("Nothing to watch, every snapshot will be empty", "watch_file", cfg.WatchFile)
	}

	fp := fingerprint.New(w.Roots, fingerprint.NewMountResolver(w.Mounts...),
		fingerprint.WithMaxDepth(cfg.MaxDepth),
		fingerprint.WithExclude(cfg.Exclude...),
	)
	return fp, w, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
