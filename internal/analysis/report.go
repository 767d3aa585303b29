package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/declinescan/internal/numeric"
	"github.com/KaramelBytes/declinescan/internal/table"
)

// Markdown renders a compact report of the run.
func (r *Result) Markdown(shareTmpl string) (string, error) {
	var b strings.Builder
	b.WriteString("[SCAN SUMMARY]\n")
	if r.Source != "" {
		b.WriteString(fmt.Sprintf("Source: %s\n", r.Source))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Delimiter: %s\n", table.DelimiterName(r.Delimiter)))
	b.WriteString(fmt.Sprintf("Status: %s\n", r.StatusMessage()))
	if r.Summary != nil {
		d, _ := r.ShareData()
		b.WriteString(fmt.Sprintf("Worst: %s (%s)\n", safeVal(d.WorstName), safeVal(d.WorstRatio)))
		b.WriteString(fmt.Sprintf("Mean change: %s%%\n", d.MeanText))
		b.WriteString(fmt.Sprintf("Declines: %d\n", d.Count))
	}

	b.WriteString("\n[COLUMNS]\n")
	name := safeName(r.Roles.Name)
	if r.Roles.NameFromFallback {
		name += " (by position)"
	}
	b.WriteString(fmt.Sprintf("- name: %s\n", name))
	b.WriteString(fmt.Sprintf("- ratio: %s\n", orNone(r.Roles.Ratio)))
	b.WriteString(fmt.Sprintf("- market: %s\n", orNone(r.Roles.Market)))

	if len(r.Ranked) > 0 {
		lt := r.ListTable()
		b.WriteString("\n[DECLINE RANKING]\n")
		b.WriteString("| # | ")
		for i, h := range lt.Header {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(h))
		}
		b.WriteString(" |\n|---|")
		for range lt.Header {
			b.WriteString("---|")
		}
		b.WriteString("\n")
		for i, row := range lt.Rows {
			b.WriteString(fmt.Sprintf("| %d | ", i+1))
			for j, c := range row {
				if j > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(c))
			}
			b.WriteString(" |\n")
		}

		tm := r.Treemap()
		b.WriteString("\n[TREEMAP]\n")
		b.WriteString(fmt.Sprintf("Path: %s\n", strings.Join(tm.Path, " > ")))
		b.WriteString(fmt.Sprintf("Color range: [%s, %s]\n", numeric.Format(tm.ColorMin), numeric.Format(tm.ColorMax)))
		for _, n := range tm.Nodes {
			label := safeVal(n.Name)
			if n.Market != "" {
				label = safeVal(n.Market) + " > " + label
			}
			b.WriteString(fmt.Sprintf("- %s: size %s, change %s\n", label, numeric.Format(n.Size), numeric.Format(n.ChangeRatio)))
		}

		text, err := r.ShareText(shareTmpl)
		if err != nil {
			return "", err
		}
		b.WriteString("\n[SHARE TEXT]\n```text\n")
		b.WriteString(text)
		b.WriteString("\n```\n")
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

func orNone(s string) string {
	if s == "" {
		return "(not found)"
	}
	return s
}
