package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/declinescan/internal/analysis"
	"github.com/KaramelBytes/declinescan/internal/numeric"
	"github.com/KaramelBytes/declinescan/internal/utils"
)

const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
	formatYAML     = "yaml"
	formatTable    = "table"
)

func parseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", formatMarkdown:
		return formatMarkdown, nil
	case formatJSON:
		return formatJSON, nil
	case "yml", formatYAML:
		return formatYAML, nil
	case "text", formatTable:
		return formatTable, nil
	default:
		return "", fmt.Errorf("unsupported --format: %s (use markdown|json|yaml|table)", s)
	}
}

// formatExt is the file extension used by scan-batch for each format.
func formatExt(format string) string {
	switch format {
	case formatJSON:
		return ".json"
	case formatYAML:
		return ".yaml"
	case formatTable:
		return ".txt"
	default:
		return ".md"
	}
}

// renderResult formats res for output. render only applies to markdown and
// styles it for the terminal.
func renderResult(res *analysis.Result, format, shareTmpl string, render bool) (string, error) {
	switch format {
	case formatJSON, formatYAML:
		v, err := res.View(shareTmpl)
		if err != nil {
			return "", err
		}
		if format == formatJSON {
			b, err := utils.PrettyJSON(v)
			if err != nil {
				return "", err
			}
			return string(b) + "\n", nil
		}
		b, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal yaml: %w", err)
		}
		return string(b), nil
	case formatTable:
		return textReport(res, shareTmpl)
	default:
		md, err := res.Markdown(shareTmpl)
		if err != nil {
			return "", err
		}
		if !render {
			return md, nil
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return "", fmt.Errorf("init markdown renderer: %w", err)
		}
		out, err := r.Render(md)
		if err != nil {
			return "", fmt.Errorf("render markdown: %w", err)
		}
		return out, nil
	}
}

// textReport is the terminal-friendly layout: aligned ranking, summary lines
// and the share text.
func textReport(res *analysis.Result, shareTmpl string) (string, error) {
	var b strings.Builder
	if res.Source != "" {
		fmt.Fprintf(&b, "%s\n", res.Source)
	}
	fmt.Fprintf(&b, "%s\n", res.StatusMessage())
	if res.Status != analysis.StatusOK {
		return b.String(), nil
	}

	header := []string{"#", res.Roles.Name, res.Roles.Ratio}
	if res.Roles.HasMarket() {
		header = append(header, res.Roles.Market)
	}
	rows := make([][]string, 0, len(res.Ranked))
	for i, rec := range res.Ranked {
		row := []string{fmt.Sprintf("%d", i+1), rec.Row.Get(res.Roles.Name), numeric.Format(rec.ChangeRatio)}
		if res.Roles.HasMarket() {
			row = append(row, rec.Row.Get(res.Roles.Market))
		}
		rows = append(rows, row)
	}
	b.WriteString("\n")
	b.WriteString(utils.TextTable(header, rows))

	d, _ := res.ShareData()
	fmt.Fprintf(&b, "\nWorst: %s (%s)\n", d.WorstName, d.WorstRatio)
	fmt.Fprintf(&b, "Mean change: %s%%\n", d.MeanText)

	text, err := res.ShareText(shareTmpl)
	if err != nil {
		return "", err
	}
	b.WriteString("\n")
	b.WriteString(text)
	b.WriteString("\n")
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "⚠ %s\n", w)
	}
	return b.String(), nil
}
