package main

import (
	"fmt"
	"time"

	"livereload/fingerprint"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fingerprint the watched files once and print the result",
	Long: `scan walks the watch set once. With --json it prints the snapshot a
connected page would receive, which also serves as a --baseline for check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("files")

		fp, _, err := newFingerprinter(cfg)
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := fp.Scan(cmd.Context())
		if err != nil {
			return serr.Wrap(err, "scan interrupted")
		}
		elapsed := time.Since(start)

		out := cmd.OutOrStdout()
		if asJSON {
			data, err := json.MarshalIndent(res.Snapshot, "", "  ")
			if err != nil {
				return serr.Wrap(err, "failed to encode snapshot")
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		}

		for _, root := range fp.Roots() {
			fmt.Fprintf(out, "%-7s %s\n", root.Class, root.Path)
		}
		if verbose {
			fmt.Fprintln(out)
			for _, f := range res.Files {
				fmt.Fprintf(out, "%s  %8s  %s\n", f.Hash[:12], humanize.Bytes(uint64(f.Size)), describe(f))
			}
		}

		fmt.Fprintf(out, "\n%s files (%s) in %s: %d stylesheets, %d scripts, %d unmapped\n",
			humanize.Comma(int64(len(res.Files))), humanize.Bytes(uint64(res.Bytes)), elapsed.Round(time.Millisecond),
			len(res.Snapshot.CSSHash), len(res.Snapshot.JSHash), res.Dropped)
		fmt.Fprintf(out, "reload hash: %s\n", orNone(res.Snapshot.ReloadHash))
		return nil
	},
}

func init() {
	scanCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	scanCmd.Flags().Bool("files", false, "list every fingerprinted file")
}

func describe(f fingerprint.FileFingerprint) string {
	if f.URI == "" {
		return f.Path
	}
	return f.URI
}

func orNone(s string) string {
	if s == "" {
		return "(no markup files)"
	}
	return s
}
