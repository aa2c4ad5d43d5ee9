package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chart-scanner/internal/marketdata"
	"chart-scanner/internal/store"
)

// addDataCommands adds market data and cache commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Market data and local cache",
		Long:  "Fetch price history and manage the local bar cache.",
	}
	cmd.AddCommand(newDataFetchCmd(app))
	cmd.AddCommand(newCacheCmd(app))
	rootCmd.AddCommand(cmd)
}

func newDataFetchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <symbol>",
		Short: "Fetch historical OHLCV bars",
		Long: `Fetch historical OHLCV bars for a symbol from the configured source.

When the cache is enabled the bars are stored locally and later scans within
the cache TTL are served from disk.`,
		Example: `  scanner data fetch AAPL
  scanner data fetch RELIANCE --source kite --period 2y
  scanner data fetch ./exports/msft.csv --source csv`,
		Args: requireArg("symbol"),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := app.context(cmd)
			defer cancel()

			sc, err := app.Scanner()
			if err != nil {
				output.Error("Failed to initialize data source: %v", err)
				return err
			}

			req := historyRequest(cmd, app, args[0])
			hreq, err := marketdata.HistoryRequest{Symbol: req.Symbol, Interval: req.Interval, Period: req.Period}.Normalize()
			if err != nil {
				output.Error("Invalid request: %v", err)
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			start := time.Now()
			series, err := sc.Source().Fetch(ctx, hreq)
			if err != nil {
				output.Error("Failed to fetch %s: %v", hreq, err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":   series.Symbol(),
					"source":   sc.Source().Name(),
					"interval": hreq.Interval,
					"period":   hreq.Period,
					"bars":     series.Bars(),
				})
			}

			output.Bold("%s  %s/%s", series.Symbol(), hreq.Interval, hreq.Period)
			output.Dim("%d bars from %s in %s", series.Len(), sc.Source().Name(), FormatDuration(time.Since(start)))
			output.Println()

			table := NewTable(output, "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
			bars := series.Bars()
			if limit > 0 && len(bars) > limit {
				bars = bars[len(bars)-limit:]
			}
			for _, bar := range bars {
				table.AddRow(
					FormatBarTime(bar.Timestamp, hreq.Interval),
					FormatPrice(bar.Open),
					FormatPrice(bar.High),
					FormatPrice(bar.Low),
					FormatPrice(bar.Close),
					FormatVolume(bar.Volume),
				)
			}
			table.Render()
			return nil
		},
	}

	addHistoryFlags(cmd)
	cmd.Flags().IntP("limit", "n", 20, "bars to show, most recent last (0 for all)")

	return cmd
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local bar cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show cached series and their freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := app.cacheStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stats, err := db.Stats(ctx)
			if err != nil {
				output.Error("Failed to read cache: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(stats)
			}

			output.Bold("Bar cache  %s", app.Config.Cache.Path)
			output.Dim("TTL %s", app.Config.Cache.TTL)
			output.Println()
			if len(stats) == 0 {
				output.Dim("  cache is empty")
				return nil
			}

			now := time.Now()
			table := NewTable(output, "SOURCE", "SYMBOL", "INTERVAL", "BARS", "FIRST", "LAST", "STATUS")
			for _, s := range stats {
				freshness := store.NewFreshness(s.LastFetch, app.Config.Cache.TTL, now)
				status := store.FormatFreshness(freshness)
				if freshness.IsFresh {
					status = output.Green(status)
				} else {
					status = output.Yellow(status)
				}
				table.AddRow(
					s.Key.Source,
					s.Key.Symbol,
					string(s.Key.Interval),
					fmt.Sprintf("%d", s.Bars),
					FormatBarTime(s.First, s.Key.Interval),
					FormatBarTime(s.Last, s.Key.Interval),
					status,
				)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [symbol]",
		Short: "Delete cached bars for one symbol, or everything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := app.cacheStore()
			if err != nil {
				output.Error("%v", err)
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			symbol := ""
			if len(args) == 1 {
				symbol = strings.TrimSpace(args[0])
			}
			removed, err := db.Clear(ctx, symbol)
			if err != nil {
				output.Error("Failed to clear cache: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "removed": removed})
			}
			target := "all symbols"
			if symbol != "" {
				target = symbol
			}
			output.Success("✓ Removed %d cached bars for %s", removed, target)
			return nil
		},
	})

	return cmd
}

// cacheStore returns the bar cache or explains why it is unavailable.
func (a *App) cacheStore() (store.BarStore, error) {
	if !a.Config.Cache.Enabled {
		return nil, fmt.Errorf("cache is disabled (cache.enabled = false in %s)", a.Config.Path())
	}
	db := a.Store()
	if db == nil {
		return nil, fmt.Errorf("cache at %s could not be opened", a.Config.Cache.Path)
	}
	return db, nil
}
