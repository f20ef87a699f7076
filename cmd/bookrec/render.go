package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kailas-cloud/bookrec"
	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hitBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const snippetRunes = 160

func renderHits(w io.Writer, query, profile string, hits []bookrec.Hit, features bool) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%q", query))+" "+
		dimStyle.Render(fmt.Sprintf("profile=%s hits=%d", profile, len(hits))))
	if len(hits) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no matches"))
		return
	}
	for i, h := range hits {
		var b strings.Builder
		title, _ := h.Fields["title"].(string)
		fmt.Fprintf(&b, "%s %s %s\n", dimStyle.Render(fmt.Sprintf("%2d.", i+1)),
			titleStyle.Render(title), dimStyle.Render(fmt.Sprintf("[%s] %.4f", h.ID, h.Score)))
		if authors, _ := h.Fields["authors"].(string); authors != "" {
			fmt.Fprintf(&b, "%s\n", authors)
		}
		if snippet := firstPassage(h.Fields["description"]); snippet != "" {
			fmt.Fprintf(&b, "%s\n", dimStyle.Render(truncate(snippet, snippetRunes)))
		}
		if features && len(h.Features) > 0 {
			fmt.Fprintf(&b, "%s\n", dimStyle.Render(formatFeatures(h.Features)))
		}
		fmt.Fprintln(w, hitBoxStyle.Render(strings.TrimRight(b.String(), "\n")))
	}
}

func renderIngest(w io.Writer, reports []bookrec.Report) {
	var ok, failed int
	for _, r := range reports {
		ok += r.Succeeded
		failed += r.Failed
		for _, item := range r.Items {
			if !item.OK {
				fmt.Fprintf(w, "%s %s %s\n", errStyle.Render("x"), item.ID, dimStyle.Render(item.Cause))
			}
		}
	}
	summary := okStyle.Render(fmt.Sprintf("%d ingested", ok))
	if failed > 0 {
		summary += ", " + errStyle.Render(fmt.Sprintf("%d failed", failed))
	}
	fmt.Fprintln(w, headerStyle.Render("ingest:")+" "+summary+" "+
		dimStyle.Render(fmt.Sprintf("in %d batches", len(reports))))
}

func renderConversion(w io.Writer, path string, written int, skipped []dombatch.Result) {
	for _, r := range skipped {
		fmt.Fprintf(w, "%s %s %s\n", errStyle.Render("x"), r.ID(), dimStyle.Render(string(r.Cause())))
	}
	summary := okStyle.Render(fmt.Sprintf("%d written", written))
	if len(skipped) > 0 {
		summary += ", " + errStyle.Render(fmt.Sprintf("%d skipped", len(skipped)))
	}
	fmt.Fprintln(w, headerStyle.Render("parquet:")+" "+summary+" "+dimStyle.Render(path))
}

func firstPassage(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []string:
		if len(d) > 0 {
			return d[0]
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func formatFeatures(f map[string]float64) string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%.4f", k, f[k])
	}
	return strings.Join(parts, " ")
}
