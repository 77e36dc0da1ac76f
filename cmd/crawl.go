// Package cmd defines and implements the CLI commands for the archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/dispatcher"
)

// newCrawlCmd creates the 'crawl' subcommand. Seeds come from positional
// arguments, falling back to crawler.seeds in the config.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed...]",
		Short: "Crawls from seeds and exports the archive",
		Long: `Crawls breadth-first from each seed (kind:key such as answer:123, or a
platform URL), storing every reachable item up to max_depth. Items finished
in earlier runs are skipped, so an interrupted crawl resumes where it stopped.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().String("status-addr", "", "serve the status API on this address while crawling")
	cmd.Flags().Int("max-depth", 0, "override crawler.max_depth")
	cmd.Flags().Int("max-items", 0, "override crawler.max_items (0 is unlimited)")
	cmd.Flags().Int("max-concurrency", 0, "override crawler.max_concurrency")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := appInstance.StartStatus(cmd.Context()); err != nil {
		return err
	}

	report, err := appInstance.Run(cmd.Context(), args)
	printReport(cmd.OutOrStdout(), report)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}
	if err != nil {
		appInstance.Logger().Info("crawl interrupted; unfinished items stay pending", zap.Int("pending", report.Pending))
	}
	return nil
}

func printReport(w io.Writer, r dispatcher.Report) {
	fmt.Fprintf(w, "run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  done %d  failed %d  pending %d  skipped %d  depth-exceeded %d  media %d\n",
		r.Done, r.Failed, r.Pending, r.Skipped, r.DepthExceeded, len(r.Media))
	if r.ItemLimitHit {
		fmt.Fprintln(w, "  item limit reached")
	}
	for _, f := range r.Failures() {
		fmt.Fprintf(w, "  failed %s: %s\n", f.ID, f.Reason)
	}
}
