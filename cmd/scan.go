package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/KaramelBytes/declinescan/internal/analysis"
	"github.com/KaramelBytes/declinescan/internal/table"
	"github.com/KaramelBytes/declinescan/internal/utils"
	"github.com/spf13/cobra"
)

var (
	scanOutputPath    string
	scanDelimiter     string
	scanMarkets       []string
	scanAllMarkets    bool
	scanSheetName     string
	scanFormat        string
	scanRender        bool
	scanShareTemplate string
	scanTolerance     float64
)

var scanCmd = &cobra.Command{
	Use:   "scan [file|-]",
	Short: "Rank the declining issues of a pasted watchlist (CSV/TSV/XLSX or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureConfig()
		format, err := parseFormat(scanFormat)
		if err != nil {
			return err
		}
		topt, opt, err := buildScanOptions(scanDelimiter, scanMarkets, scanAllMarkets, scanTolerance)
		if err != nil {
			return err
		}
		shareTmpl, err := readShareTemplate(scanShareTemplate)
		if err != nil {
			return err
		}

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		tbl, err := loadTable(cmd.InOrStdin(), path, scanSheetName, topt)
		if err != nil {
			return err
		}
		res, err := analysis.Run(cmd.Context(), tbl, opt)
		if err != nil {
			return err
		}
		if path != "-" {
			res.Source = path
		}
		logResult(res)

		out, err := renderResult(res, format, shareTmpl, scanRender)
		if err != nil {
			return err
		}
		if errors.Is(res.Err(), analysis.ErrNoRatioColumn) {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s\n", res.StatusMessage())
		}

		if scanOutputPath != "" {
			if err := utils.SafeWriteFile(scanOutputPath, []byte(out)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote scan to %s\n", scanOutputPath)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanOutputPath, "output", "o", "", "write the report to a file instead of stdout")
	scanCmd.Flags().StringVar(&scanDelimiter, "delimiter", "", "text delimiter: ',' | ';' | 'tab' | 'space' (sniffed if omitted)")
	scanCmd.Flags().StringSliceVarP(&scanMarkets, "market", "m", nil, "market label or code to include (repeatable; default from config)")
	scanCmd.Flags().BoolVar(&scanAllMarkets, "all-markets", false, "disable the market filter")
	scanCmd.Flags().StringVar(&scanSheetName, "sheet", "", "XLSX: sheet name (first sheet if omitted)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", formatMarkdown, "output format: markdown|json|yaml|table")
	scanCmd.Flags().BoolVar(&scanRender, "render", false, "style markdown output for the terminal")
	scanCmd.Flags().StringVar(&scanShareTemplate, "share-template", "", "file holding a text/template for the share text")
	scanCmd.Flags().Float64Var(&scanTolerance, "tolerance", -1, "share of rows allowed to have the wrong field count (default from config)")
}

// buildScanOptions combines config and flags. A nil markets slice uses the
// configured selection.
func buildScanOptions(delimiter string, markets []string, allMarkets bool, tolerance float64) (table.Options, analysis.Options, error) {
	topt := cfg.TableOptions()
	d, err := table.ParseDelimiter(delimiter)
	if err != nil {
		return topt, analysis.Options{}, fmt.Errorf("invalid --delimiter: %w", err)
	}
	topt.Delimiter = d
	if tolerance >= 0 {
		if tolerance > 1 {
			return topt, analysis.Options{}, fmt.Errorf("invalid --tolerance: %v (use 0..1)", tolerance)
		}
		topt.MismatchTolerance = tolerance
	}

	opt := analysis.Options{Rules: cfg.Rules()}
	switch {
	case allMarkets:
	case len(markets) > 0:
		opt.SelectedMarkets = cfg.MarketCodes(markets)
	default:
		opt.SelectedMarkets = cfg.MarketCodes(cfg.SelectedMarkets)
	}
	return topt, opt, nil
}

func readShareTemplate(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read share template: %w", err)
	}
	return string(b), nil
}

// loadTable reads path ("-" for stdin) with the loader matching its extension.
func loadTable(stdin io.Reader, path, sheet string, topt table.Options) (*table.RawTable, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return table.Parse(string(b), topt)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file: %w", err)
	}
	if sheet != "" && strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return table.LoadXLSX(path, sheet, topt)
	}
	return table.Load(path, topt)
}

func logResult(res *analysis.Result) {
	logger.Debug("scan finished",
		slog.String("run_id", res.RunID),
		slog.String("source", res.Source),
		slog.String("status", string(res.Status)),
		slog.Int("rows", res.Rows),
		slog.Int("declines", len(res.Ranked)),
		slog.String("delimiter", table.DelimiterName(res.Delimiter)),
	)
	for _, w := range res.Warnings {
		logger.Info("scan warning", slog.String("run_id", res.RunID), slog.String("warning", w))
	}
}
