package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/KaramelBytes/declinescan/internal/analysis"
	"github.com/KaramelBytes/declinescan/internal/table"
	"github.com/KaramelBytes/declinescan/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	sbOutputDir     string
	sbDelimiter     string
	sbMarkets       []string
	sbAllMarkets    bool
	sbSheetName     string
	sbFormat        string
	sbShareTemplate string
	sbTolerance     float64
	sbKeepGoing     bool
	sbQuiet         bool
	sbJobs          int
)

var scanBatchCmd = &cobra.Command{
	Use:   "scan-batch <files...>",
	Short: "Scan multiple CSV/TSV/XLSX watchlists with progress and optional output directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureConfig()
		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		sort.Strings(files)

		format, err := parseFormat(sbFormat)
		if err != nil {
			return err
		}
		topt, opt, err := buildScanOptions(sbDelimiter, sbMarkets, sbAllMarkets, sbTolerance)
		if err != nil {
			return err
		}
		shareTmpl, err := readShareTemplate(sbShareTemplate)
		if err != nil {
			return err
		}
		if sbOutputDir != "" {
			if err := os.MkdirAll(sbOutputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}

		// Scan concurrently; report each file in input order once it and every
		// file before it has finished.
		results := make([]batchResult, len(files))
		done := make([]chan struct{}, len(files))
		for i := range done {
			done[i] = make(chan struct{})
		}
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(max(sbJobs, 1))
		waitErr := make(chan error, 1)
		go func() {
			for i, path := range files {
				i, path := i, path
				g.Go(func() error {
					defer close(done[i])
					if err := ctx.Err(); err != nil {
						results[i] = batchResult{err: err}
						return nil
					}
					body, res, err := scanFile(ctx, path, format, shareTmpl, topt, opt)
					results[i] = batchResult{body: body, res: res, err: err}
					if err != nil && !sbKeepGoing {
						return fmt.Errorf("%s: %w", path, err)
					}
					return nil
				})
			}
			waitErr <- g.Wait()
		}()

		out := cmd.OutOrStdout()
		total := len(files)
		failed := 0
		for i, path := range files {
			if !sbQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			<-done[i]
			r := results[i]
			if r.err != nil && !sbKeepGoing {
				if err := <-waitErr; err != nil {
					return err
				}
				return fmt.Errorf("%s: %w", path, r.err)
			}
			if r.err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, r.err)
				continue
			}
			if errors.Is(r.res.Err(), analysis.ErrNoRatioColumn) {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s: %s\n", filepath.Base(path), r.res.StatusMessage())
			}

			if sbOutputDir == "" {
				if !sbQuiet {
					fmt.Fprint(out, r.body)
				}
				continue
			}
			outFile := nextOutputPath(sbOutputDir, path, formatExt(format))
			if err := utils.SafeWriteFile(outFile, []byte(r.body)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if !sbQuiet {
				fmt.Fprintf(out, "✓ %s → %s\n", r.res.StatusMessage(), filepath.Base(outFile))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanBatchCmd)
	scanBatchCmd.Flags().StringVar(&sbOutputDir, "output-dir", "", "write one report per input into this directory")
	scanBatchCmd.Flags().StringVar(&sbDelimiter, "delimiter", "", "text delimiter: ',' | ';' | 'tab' | 'space' (sniffed if omitted)")
	scanBatchCmd.Flags().StringSliceVarP(&sbMarkets, "market", "m", nil, "market label or code to include (repeatable; default from config)")
	scanBatchCmd.Flags().BoolVar(&sbAllMarkets, "all-markets", false, "disable the market filter")
	scanBatchCmd.Flags().StringVar(&sbSheetName, "sheet", "", "XLSX: sheet name (first sheet if omitted)")
	scanBatchCmd.Flags().StringVarP(&sbFormat, "format", "f", formatMarkdown, "output format: markdown|json|yaml|table")
	scanBatchCmd.Flags().StringVar(&sbShareTemplate, "share-template", "", "file holding a text/template for the share text")
	scanBatchCmd.Flags().Float64Var(&sbTolerance, "tolerance", -1, "share of rows allowed to have the wrong field count (default from config)")
	scanBatchCmd.Flags().BoolVar(&sbKeepGoing, "keep-going", false, "continue with the next file after a failure")
	scanBatchCmd.Flags().BoolVar(&sbQuiet, "quiet", false, "suppress progress and non-essential output")
	scanBatchCmd.Flags().IntVarP(&sbJobs, "jobs", "j", runtime.NumCPU(), "number of files scanned concurrently")
}

type batchResult struct {
	body string
	res  *analysis.Result
	err  error
}

func scanFile(ctx context.Context, path, format, shareTmpl string, topt table.Options, opt analysis.Options) (string, *analysis.Result, error) {
	tbl, err := loadTable(nil, path, sbSheetName, topt)
	if err != nil {
		return "", nil, err
	}
	res, err := analysis.Run(ctx, tbl, opt)
	if err != nil {
		return "", nil, err
	}
	res.Source = path
	logResult(res)
	body, err := renderResult(res, format, shareTmpl, false)
	if err != nil {
		return "", nil, err
	}
	return body, res, nil
}

// nextOutputPath picks <base><ext> in dir, or <base>__N<ext> when taken, so
// inputs sharing a basename do not overwrite each other.
func nextOutputPath(dir, input, ext string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	outFile := filepath.Join(dir, base+".scan"+ext)
	if _, err := os.Stat(outFile); os.IsNotExist(err) {
		return outFile
	}
	for idx := 2; ; idx++ {
		cand := filepath.Join(dir, fmt.Sprintf("%s__%d.scan%s", base, idx, ext))
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand
		}
	}
}
