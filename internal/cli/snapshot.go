package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/IndexGo/pkg/dataflows"
	"github.com/dyike/IndexGo/pkg/resolver"
)

// takeSnapshot records the quote, detail and recent history of every fund
// and holding in the corpus, plus the alternate listings the resolver may
// fall back to, so later runs can use the static provider offline.
func takeSnapshot(ctx context.Context, a *app) (dataflows.Snapshot, []string) {
	symbols := make(map[string]bool)
	for _, id := range append(a.corpus.Funds(), a.corpus.Holdings()...) {
		symbol := a.normalizer.Normalize(id)
		if dataflows.ValidateSymbol(symbol) != nil {
			continue
		}
		symbols[symbol] = true
		if alt, ok := a.overrides.Alternate(symbol); ok {
			symbols[alt] = true
		}
	}

	var (
		mu     sync.Mutex
		snap   = dataflows.Snapshot{History: make(map[string][]dataflows.Bar)}
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxWorkers)
	for symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			q, qerr := a.provider.FastQuote(gctx, symbol)
			d, derr := a.provider.Detail(gctx, symbol)
			bars, herr := a.provider.History(gctx, symbol, resolver.HistoryWindow)

			mu.Lock()
			defer mu.Unlock()
			if qerr == nil && q != nil {
				snap.Quotes = append(snap.Quotes, *q)
			}
			if derr == nil && d != nil {
				snap.Details = append(snap.Details, *d)
			}
			if herr == nil && len(bars) > 0 {
				snap.History[symbol] = bars
			}
			if qerr != nil && derr != nil && herr != nil {
				failed = append(failed, symbol)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(snap.Quotes, func(i, j int) bool { return snap.Quotes[i].Symbol < snap.Quotes[j].Symbol })
	sort.Slice(snap.Details, func(i, j int) bool { return snap.Details[i].Symbol < snap.Details[j].Symbol })
	sort.Strings(failed)
	return snap, failed
}

func newSnapshotCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save live quotes for every fund and holding to a file",
		Long: `Fetch quotes and details for the whole corpus from the configured providers
and write them as a market snapshot. Point the "static" provider at the file
to rerun plans offline with the same prices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				path := out
				if path == "" {
					path = filepath.Join(a.cfg.DataDir, "market_snapshot.json")
				}

				snap, failed := takeSnapshot(ctx, a)
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := dataflows.SaveDataToFile(snap, path); err != nil {
					return fmt.Errorf("save snapshot: %w", err)
				}

				w := cmd.OutOrStdout()
				DisplaySuccess(w, fmt.Sprintf("Saved %d quotes, %d details and %d histories to %s", len(snap.Quotes), len(snap.Details), len(snap.History), path))
				if len(failed) > 0 {
					DisplayWarning(w, fmt.Sprintf("%d symbols returned no data: %s", len(failed), truncateString(fmt.Sprint(failed), 120)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Snapshot file (data directory market_snapshot.json if not set)")
	return cmd
}
