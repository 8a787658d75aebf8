package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"livereload/reconcile"
	"livereload/snapshot"

	"github.com/goccy/go-json"
	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show what a page would do with the current files",
	Long: `check replays one live reload event against a page. The baseline is a
snapshot saved earlier with "scan --json"; the next snapshot is a fresh
scan unless --next is given. The page is an HTML file or URL whose
scripts and stylesheets are compared against the changed URIs.`,
	Example: `  livereload scan --json > before.json
  # edit some files
  livereload check --baseline before.json --page https://site.test/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		flags := cmd.Flags()
		baselinePath, _ := flags.GetString("baseline")
		pageRef, _ := flags.GetString("page")
		baseURL, _ := flags.GetString("base-url")
		nextPath, _ := flags.GetString("next")

		match, err := reconcile.ParseMatchMode(cfg.Match)
		if err != nil {
			return err
		}

		baseline, err := readSnapshot(baselinePath)
		if err != nil {
			return err
		}

		page, err := loadPage(cmd.Context(), pageRef, baseURL)
		if err != nil {
			return err
		}

		var next snapshot.Snapshot
		if nextPath != "" {
			if next, err = readSnapshot(nextPath); err != nil {
				return err
			}
		} else {
			fp, _, err := newFingerprinter(cfg)
			if err != nil {
				return err
			}
			if next, err = fp.Snapshot(cmd.Context()); err != nil {
				return serr.Wrap(err, "scan interrupted")
			}
		}

		r := reconcile.New(reconcile.StateFrom(baseline), page, reconcile.WithMatchMode(match))
		decision := r.Apply(next)

		data, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			return serr.Wrap(err, "failed to encode decision")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	f := checkCmd.Flags()
	f.String("baseline", "", "snapshot JSON captured at page load (required)")
	f.String("page", "", "HTML file or http(s) URL of the page (required)")
	f.String("base-url", "", "URL the page file is served from, for resolving relative links")
	f.String("next", "", "snapshot JSON to apply instead of scanning now")
	_ = checkCmd.MarkFlagRequired("baseline")
	_ = checkCmd.MarkFlagRequired("page")
}

func readSnapshot(path string) (snapshot.Snapshot, error) {
	var s snapshot.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return s, serr.Wrap(err, "failed to read snapshot", "path", path)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, serr.Wrap(err, "failed to decode snapshot", "path", path)
	}
	return s, nil
}

func loadPage(ctx context.Context, ref, baseURL string) (reconcile.Page, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return fetchPage(ctx, ref)
	}

	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return reconcile.Page{}, serr.Wrap(err, "invalid base URL", "url", baseURL)
		}
		base = u
	}

	f, err := os.Open(ref)
	if err != nil {
		return reconcile.Page{}, serr.Wrap(err, "failed to open page", "path", ref)
	}
	defer f.Close()
	return reconcile.ParsePage(f, base)
}

func fetchPage(ctx context.Context, ref string) (reconcile.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return reconcile.Page{}, serr.Wrap(err, "failed to build page request", "url", ref)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return reconcile.Page{}, serr.Wrap(err, "failed to fetch page", "url", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return reconcile.Page{}, serr.F("page %s returned %s", ref, resp.Status)
	}
	// Redirects change the base for relative links
	return reconcile.ParsePage(resp.Body, resp.Request.URL)
}
