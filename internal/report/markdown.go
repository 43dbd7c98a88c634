// Package report renders a finished analysis run as Markdown and HTML.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"goharmonic/app"
	"goharmonic/domain/verdict"
)

// Markdown renders the run summary. It never fails; missing sections are omitted.
func Markdown(res *app.AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# K-index analysis: %s\n\n", res.Name)
	fmt.Fprintf(&b, "- Run: `%s`\n", res.RunID)
	if !res.Completed.IsZero() {
		fmt.Fprintf(&b, "- Completed: %s (%s)\n", res.Completed.Format("2006-01-02 15:04:05 MST"), res.Completed.Sub(res.Started).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "- **Score: %.1f / %.1f (%s)**\n\n", res.Score.Score, res.Score.MaxScore, res.Score.Readiness)

	b.WriteString("## Catalogs\n\n")
	b.WriteString("| Source | Records | Malformed | Status |\n|---|---:|---:|---|\n")
	for _, s := range res.Sources {
		status := "ok"
		if s.Error != "" {
			status = "unavailable: " + escape(s.Error)
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", s.Name, s.Records, s.Malformed, status)
	}
	if res.Merge != nil {
		fmt.Fprintf(&b, "\nMerged **%d** stars across %d columns", res.Merge.RowCount, res.Merge.ColumnCount)
		if res.Merge.Collisions > 0 {
			fmt.Fprintf(&b, " (%d conflicting values kept per source)", res.Merge.Collisions)
		}
		b.WriteString(".\n")
		for _, w := range res.Merge.Warnings {
			fmt.Fprintf(&b, "\n> %s\n", escape(w))
		}
	}

	b.WriteString("\n## k statistics\n\n")
	fmt.Fprintf(&b, "%d valid stars, %d rejected.\n\n", res.Valid, res.Rejected)
	if res.KStats.N > 0 {
		b.WriteString("| min | max | median | mean | std |\n|---:|---:|---:|---:|---:|\n")
		fmt.Fprintf(&b, "| %.2f | %.2f | %.2f | %.2f | %.2f |\n",
			res.KStats.Min, res.KStats.Max, res.KStats.Median, res.KStats.Mean, res.KStats.Std)
	}

	b.WriteString("\n## Tests\n\n")
	b.WriteString("| Test | Verdict | Detail |\n|---|---|---|\n")
	for _, v := range res.Battery.Verdicts {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", v.Test, v.Tag, escape(v.Reason))
	}

	if c, ok := res.Battery.Verdict(verdict.TestClustering); ok && c.Clustering != nil && len(c.Clustering.Peaks) > 0 {
		b.WriteString("\n### Harmonic peaks\n\n")
		b.WriteString("| n | k predicted | stars |\n|---:|---:|---:|\n")
		for _, p := range c.Clustering.Peaks {
			fmt.Fprintf(&b, "| %d | %.1f | %d |\n", p.N, p.KPred, p.Count)
		}
	}

	if ph := res.Battery.Phase; ph != nil && len(ph.Phases) > 0 {
		fmt.Fprintf(&b, "\n### By %s\n\n", ph.Field)
		b.WriteString("| Phase | Stars | k median | k mean |\n|---|---:|---:|---:|\n")
		for _, p := range ph.Phases {
			name := p.Phase
			if p.Label != "" {
				name = fmt.Sprintf("%s (%s)", p.Label, p.Phase)
			}
			fmt.Fprintf(&b, "| %s | %d | %.2f | %.2f |\n", name, p.Count, p.KMedian, p.KMean)
		}
	}

	b.WriteString("\n## Score\n\n")
	b.WriteString("| Item | Verdict | Points |\n|---|---|---:|\n")
	for _, c := range res.Score.Contributions {
		fmt.Fprintf(&b, "| %s | %s | %.1f |\n", c.Item, c.Tag, c.Points)
	}
	for _, name := range res.Score.Omitted {
		fmt.Fprintf(&b, "| %s | omitted | 0.0 |\n", name)
	}

	if len(res.Degraded) > 0 {
		b.WriteString("\n## Degraded stages\n\n")
		for _, d := range res.Degraded {
			fmt.Fprintf(&b, "- %s\n", escape(d))
		}
	}
	return b.String()
}

// HTML renders the Markdown summary as a standalone page
func HTML(res *app.AnalysisResult) []byte {
	return ToHTML(Markdown(res), "K-index analysis: "+res.Name)
}

// ToHTML converts Markdown with tables into a complete HTML document
func ToHTML(md, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
		Title: title,
	})
	return markdown.ToHTML([]byte(md), p, r)
}

// escape keeps cell text from breaking a table row
func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
