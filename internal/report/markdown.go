// Package report renders analysis reports as markdown and HTML.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"speccoh/domain/coherence"
)

// Markdown renders a full report document.
func Markdown(r *coherence.Report) string {
	var b strings.Builder

	title := r.Target
	if title == "" {
		title = r.Source
	}
	if title == "" {
		title = "Spectrum"
	}
	fmt.Fprintf(&b, "# Coherence Report: %s\n\n", title)

	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	if r.Source != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", r.Source)
	}
	if r.Instrument != "" {
		fmt.Fprintf(&b, "- Instrument: %s\n", r.Instrument)
	}
	if r.SNR > 0 {
		fmt.Fprintf(&b, "- Estimated SNR: %.1f\n", r.SNR)
	}
	fmt.Fprintf(&b, "- Analyzed: %s\n", r.CreatedAt)
	if !r.Fingerprint.IsEmpty() {
		fmt.Fprintf(&b, "- Flux fingerprint: `%s`\n", shortHash(r.Fingerprint.String()))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "**Quality grade: %s**\n\n", r.Grade)

	b.WriteString("## Parameters\n\n")
	b.WriteString("| Parameter | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Window | %d |\n", r.Params.Window)
	fmt.Fprintf(&b, "| Step | %d |\n", r.Params.Step)
	fmt.Fprintf(&b, "| Threshold | %.4f |\n\n", r.Threshold)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Statistic | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Windows | %d |\n", r.Summary.N)
	fmt.Fprintf(&b, "| Mean C-Index | %.4f |\n", r.Summary.Mean)
	fmt.Fprintf(&b, "| Std | %.4f |\n", r.Summary.Std)
	fmt.Fprintf(&b, "| Min | %.4f |\n", r.Summary.Min)
	fmt.Fprintf(&b, "| Max | %.4f |\n", r.Summary.Max)
	fmt.Fprintf(&b, "| CV | %.4f |\n", r.Summary.CV)
	fmt.Fprintf(&b, "| P25 | %.4f |\n", r.Summary.P25)
	fmt.Fprintf(&b, "| P75 | %.4f |\n", r.Summary.P75)
	fmt.Fprintf(&b, "| Suggested threshold | %.4f |\n\n", r.Summary.SuggestedThreshold)

	sm, st, co := componentMeans(r.Series)
	b.WriteString("## Components\n\n")
	b.WriteString("| Component | Mean |\n|---|---|\n")
	fmt.Fprintf(&b, "| Smoothness | %.4f |\n", sm)
	fmt.Fprintf(&b, "| Stability | %.4f |\n", st)
	fmt.Fprintf(&b, "| Consistency | %.4f |\n\n", co)

	b.WriteString("## Anomalous Regions\n\n")
	if len(r.Regions) == 0 {
		fmt.Fprintf(&b, "No windows fell below the %.4f threshold.\n\n", r.Threshold)
	} else {
		b.WriteString("| Start | End | Windows | Min C-Index | Mean C-Index |\n|---|---|---|---|---|\n")
		for _, region := range r.Regions {
			fmt.Fprintf(&b, "| %d | %d | %d | %.4f | %.4f |\n",
				region.Start, region.End, region.WindowCount, region.MinCIndex, region.MeanCIndex)
		}
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		counts := warningCounts(r.Warnings)
		codes := make([]string, 0, len(counts))
		for code := range counts {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "- %s: %d\n", code, counts[coherence.WarningCode(code)])
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML converts markdown to an HTML fragment.
func RenderHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.Render(doc, renderer)
}

// HTML renders the full report straight to HTML.
func HTML(r *coherence.Report) []byte {
	return RenderHTML([]byte(Markdown(r)))
}

func componentMeans(series coherence.Series) (smoothness, stability, consistency float64) {
	if len(series) == 0 {
		return 0, 0, 0
	}
	sm := make([]float64, len(series))
	st := make([]float64, len(series))
	co := make([]float64, len(series))
	for i, ws := range series {
		sm[i] = ws.Smoothness
		st[i] = ws.Stability
		co[i] = ws.Consistency
	}
	smoothness, _ = stats.Mean(sm)
	stability, _ = stats.Mean(st)
	consistency, _ = stats.Mean(co)
	return smoothness, stability, consistency
}

func warningCounts(warnings []coherence.Warning) map[coherence.WarningCode]int {
	counts := make(map[coherence.WarningCode]int)
	for _, w := range warnings {
		counts[w.Code]++
	}
	return counts
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
