package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chart-scanner/internal/analysis"
	"chart-scanner/internal/analysis/indicators"
	"chart-scanner/internal/analysis/patterns"
	"chart-scanner/internal/models"
	"chart-scanner/internal/scanner"
)

// addScanCommands adds the analysis commands.
func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newBollingerCmd(app))
	rootCmd.AddCommand(newDetectorsCmd(app))
}

func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("interval", "i", "", "bar interval (default from config, e.g. 1d, 1wk, 1h)")
	cmd.Flags().StringP("period", "p", "", "lookback period (default from config, e.g. 6mo, 1y, max)")
}

func historyRequest(cmd *cobra.Command, app *App, symbol string) scanner.Request {
	interval, _ := cmd.Flags().GetString("interval")
	period, _ := cmd.Flags().GetString("period")
	if interval == "" {
		interval = app.Config.Data.Interval
	}
	if period == "" {
		period = app.Config.Data.Period
	}
	return scanner.Request{
		Symbol:   symbol,
		Interval: models.Interval(interval),
		Period:   models.Period(period),
	}
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <symbol>",
		Short: "Run one detector over a symbol's price history",
		Long: `Fetch price history for a symbol and run a single computation over it.

Without --detector, Bollinger Bands are computed. With --all, every chart
pattern detector runs in parallel over one fetch and a summary is printed.`,
		Example: `  scanner scan AAPL
  scanner scan AAPL --detector "head and shoulders"
  scanner scan RELIANCE.NS -d triangles --period 6mo
  scanner scan INFY --source kite --all`,
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
			req.Detector, _ = cmd.Flags().GetString("detector")
			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")
			if pub, _ := cmd.Flags().GetBool("publish"); pub {
				app.Config.Publish.Enabled = true
			}

			var results []*scanner.Result
			if all {
				results, err = sc.ScanAll(ctx, req)
			} else {
				var res *scanner.Result
				res, err = sc.Scan(ctx, req)
				results = []*scanner.Result{res}
			}
			if err != nil {
				output.Error("Scan failed: %v", err)
				return err
			}

			if err := publishResults(ctx, app, results); err != nil {
				output.Warning("Publish failed: %v", err)
			}

			if output.IsJSON() {
				if all {
					return output.JSON(results)
				}
				return output.JSON(results[0])
			}
			if all {
				displaySummary(output, sc.Registry(), results)
				return nil
			}
			displayResult(output, sc.Registry(), results[0], limit, false)
			return nil
		},
	}

	addHistoryFlags(cmd)
	cmd.Flags().StringP("detector", "d", "", "detector to run (see 'scanner detectors')")
	cmd.Flags().Bool("all", false, "run every chart pattern detector")
	cmd.Flags().IntP("limit", "n", 20, "rows to show per table, most recent first (0 for all)")
	cmd.Flags().Bool("publish", false, "publish results to NATS even if disabled in config")

	return cmd
}

func newBollingerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bollinger <symbol>",
		Short: "Compute Bollinger Bands for a symbol",
		Long: `Compute the simple moving average, sample standard deviation and the
upper and lower bands over the close price. A BUY marker flags a close above
the upper band, a SELL marker a close below the lower band.`,
		Example: `  scanner bollinger AAPL
  scanner bollinger AAPL --window 50 --multiplier 2.5
  scanner bollinger TSLA --signals`,
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
			req.Detector = string(analysis.KindBollingerBands)
			if cmd.Flags().Changed("window") || cmd.Flags().Changed("multiplier") {
				bb := sc.Bollinger()
				if cmd.Flags().Changed("window") {
					bb.Window, _ = cmd.Flags().GetInt("window")
				}
				if cmd.Flags().Changed("multiplier") {
					bb.Multiplier, _ = cmd.Flags().GetFloat64("multiplier")
				}
				req.Bollinger = &bb
			}
			limit, _ := cmd.Flags().GetInt("limit")
			signalsOnly, _ := cmd.Flags().GetBool("signals")

			res, err := sc.Scan(ctx, req)
			if err != nil {
				output.Error("Bollinger calculation failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			displayResult(output, sc.Registry(), res, limit, signalsOnly)
			return nil
		},
	}

	addHistoryFlags(cmd)
	cmd.Flags().IntP("window", "w", indicators.DefaultBollingerWindow, "moving average window")
	cmd.Flags().Float64P("multiplier", "k", indicators.DefaultBollingerMultiplier, "band width in standard deviations")
	cmd.Flags().IntP("limit", "n", 20, "rows to show, most recent first (0 for all)")
	cmd.Flags().Bool("signals", false, "show only bars with a signal")

	return cmd
}

func newDetectorsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "detectors",
		Short: "List the available computations",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			registry := patterns.NewRegistry()

			type entry struct {
				Name       string   `json:"name"`
				Window     string   `json:"window"`
				Sets       []string `json:"sets"`
				MinBars    int      `json:"min_bars"`
				Limitation string   `json:"limitation,omitempty"`
			}
			entries := []entry{{
				Name:    string(analysis.KindBollingerBands),
				Window:  fmt.Sprintf("-%d..0", app.Config.Bollinger.Window-1),
				Sets:    []string{"buy", "sell"},
				MinBars: app.Config.Bollinger.Window,
			}}
			for _, d := range registry.All() {
				entries = append(entries, entry{
					Name:       d.Name(),
					Window:     formatWindow(d.Window()),
					Sets:       d.Sets(),
					MinBars:    d.MinBars(),
					Limitation: d.KnownLimitation(),
				})
			}

			if output.IsJSON() {
				return output.JSON(entries)
			}

			table := NewTable(output, "DETECTOR", "OFFSETS", "SETS", "MIN BARS")
			for _, e := range entries {
				table.AddRow(e.Name, e.Window, strings.Join(e.Sets, ", "), fmt.Sprintf("%d", e.MinBars))
			}
			table.Render()

			output.Println()
			for _, e := range entries {
				if e.Limitation != "" {
					output.Warning("⚠ %s: %s", e.Name, e.Limitation)
				}
			}
			return nil
		},
	}
}

func formatWindow(w analysis.Window) string {
	if w.Forward == 0 {
		return fmt.Sprintf("-%d..0", w.Back)
	}
	return fmt.Sprintf("-%d..+%d", w.Back, w.Forward)
}

func displayResult(output *Output, registry *patterns.Registry, res *scanner.Result, limit int, signalsOnly bool) {
	output.Bold("%s  %s", res.Symbol, res.Detector)
	output.Dim("%d bars  %s to %s  interval %s  period %s  source %s",
		res.Series.Len(),
		FormatBarTime(res.Series.First(), res.Interval),
		FormatBarTime(res.Series.Last(), res.Interval),
		res.Interval, res.Period, res.Source)
	output.Println()

	if res.Bollinger != nil {
		displayBollinger(output, res, limit, signalsOnly)
		return
	}
	if d, ok := registry.Get(res.Detector); ok && d.KnownLimitation() != "" {
		output.Warning("⚠ %s", d.KnownLimitation())
		output.Println()
	}
	displayDetection(output, res, limit)
}

func displayBollinger(output *Output, res *scanner.Result, limit int, signalsOnly bool) {
	d := res.Bollinger
	output.Info("Bollinger Bands (%d, %.1f)", d.Window, d.Multiplier)

	var rows []int
	for i := 0; i < d.Len(); i++ {
		if signalsOnly && !d.Buy[i] && !d.Sell[i] {
			continue
		}
		rows = append(rows, i)
	}
	rows = lastN(rows, limit)

	table := NewTable(output, "DATE", "CLOSE", "SMA", "UPPER", "LOWER", "SIGNAL")
	for _, i := range rows {
		bar, _ := res.Series.At(i)
		table.AddRow(
			FormatBarTime(bar.Timestamp, res.Interval),
			FormatPrice(bar.Close),
			FormatValue(d.SMA[i]),
			FormatValue(d.Upper[i]),
			FormatValue(d.Lower[i]),
			output.SignalMarker(d.Buy[i], d.Sell[i]),
		)
	}
	if table.Len() == 0 {
		output.Dim("  no rows")
	} else {
		table.Render()
	}

	output.Println()
	buys, sells := d.BuySignals(), d.SellSignals()
	output.Printf("  Buy signals:  %s\n", output.Green(fmt.Sprintf("%d", buys.Len())))
	output.Printf("  Sell signals: %s\n", output.Red(fmt.Sprintf("%d", sells.Len())))
	if last := d.Len() - 1; last >= 0 && d.SMA[last].Valid {
		bar, _ := res.Series.At(last)
		output.Printf("  Bandwidth:    %s\n", FormatValue(d.Bandwidth(last)))
		output.Printf("  %%B:           %s\n", FormatValue(d.PercentB(last, bar.Close)))
	} else {
		output.Dim("  Fewer than %d bars: bands are undefined", d.Window)
	}
}

func displayDetection(output *Output, res *scanner.Result, limit int) {
	for _, set := range res.Detection.Sets {
		output.Info("%s (%d matches)", set.Name, set.Len())
		if set.Len() == 0 {
			output.Dim("  no matches")
			output.Println()
			continue
		}
		table := NewTable(output, "INDEX", "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
		for _, i := range lastN(set.Indices, limit) {
			bar, _ := res.Series.At(i)
			table.AddRow(
				fmt.Sprintf("%d", i),
				FormatBarTime(bar.Timestamp, res.Interval),
				FormatPrice(bar.Open),
				FormatPrice(bar.High),
				FormatPrice(bar.Low),
				FormatPrice(bar.Close),
				FormatVolume(bar.Volume),
			)
		}
		table.Render()
		if limit > 0 && set.Len() > limit {
			output.Dim("  showing the last %d of %d: %s", limit, set.Len(), TruncateString(FormatIndices(set.Indices), 120))
		}
		output.Println()
	}
}

func displaySummary(output *Output, registry *patterns.Registry, results []*scanner.Result) {
	if len(results) == 0 {
		return
	}
	first := results[0]
	output.Bold("%s  all detectors", first.Symbol)
	output.Dim("%d bars  %s to %s  source %s",
		first.Series.Len(),
		FormatBarTime(first.Series.First(), first.Interval),
		FormatBarTime(first.Series.Last(), first.Interval),
		first.Source)
	output.Println()

	table := NewTable(output, "DETECTOR", "SET", "MATCHES", "LATEST")
	for _, res := range results {
		for _, set := range res.Detection.Sets {
			latest := "-"
			if n := set.Len(); n > 0 {
				bar, _ := res.Series.At(set.Indices[n-1])
				latest = FormatBarTime(bar.Timestamp, res.Interval)
			}
			matches := fmt.Sprintf("%d", set.Len())
			if set.Len() > 0 {
				matches = output.Green(matches)
			}
			table.AddRow(string(res.Detector), set.Name, matches, latest)
		}
	}
	table.Render()

	var notes []string
	for _, res := range results {
		if d, ok := registry.Get(res.Detector); ok && d.KnownLimitation() != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", res.Detector, d.KnownLimitation()))
		}
	}
	if len(notes) > 0 {
		output.Println()
		for _, n := range notes {
			output.Dim("  %s", n)
		}
	}
}

// lastN keeps the last n elements; n <= 0 keeps everything.
func lastN(idx []int, n int) []int {
	if n <= 0 || len(idx) <= n {
		return idx
	}
	return idx[len(idx)-n:]
}

func publishResults(ctx context.Context, app *App, results []*scanner.Result) error {
	pub, err := app.Publisher()
	if err != nil || pub == nil {
		return err
	}
	for _, res := range results {
		if err := pub.Publish(ctx, res); err != nil {
			return err
		}
	}
	app.Logger.Info().Int("results", len(results)).Msg("Published scan results")
	return nil
}
