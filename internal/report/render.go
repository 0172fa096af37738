// Package report writes the run summary as results.json and an HTML page
// (markdown rendered with gomarkdown, sanitized with bluemonday), and can publish
// both to a bucket.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/notifier-e2e/internal/suite"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.5;
            max-width: 960px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        table { width: 100%; border-collapse: collapse; margin: 1em 0; }
        th, td { border: 1px solid #e0e0e0; padding: 0.4em 0.8em; text-align: left; }
        th { background-color: #f5f5f5; }
        pre { background-color: #f5f5f5; padding: 1rem; border-radius: 6px; overflow-x: auto; }
    </style>
</head>
<body>
    <article>
        {{.Content}}
    </article>
</body>
</html>`

var page = template.Must(template.New("report").Parse(pageTemplate))

type pageData struct {
	Title   string
	Content template.HTML
}

var statusMark = map[suite.Status]string{
	suite.StatusPassed:  "passed",
	suite.StatusFlaky:   "flaky",
	suite.StatusFailed:  "**failed**",
	suite.StatusSkipped: "skipped",
}

// Markdown renders s as a markdown document: a headline, a result table, and one
// section per failed or skipped test.
func Markdown(s *suite.Summary) string {
	var b strings.Builder
	c := s.Counts()

	fmt.Fprintf(&b, "# Notifier end-to-end run %s\n\n", s.RunID)
	on := ""
	if s.Browser != "" {
		on = " on " + s.Browser
	}
	fmt.Fprintf(&b, "Started %s%s, took %s with %d worker(s) and %d retr%s.\n\n",
		s.Started.UTC().Format(time.RFC3339), on, s.Duration.Round(time.Millisecond), s.Workers, s.Retries, plural(s.Retries, "y", "ies"))
	fmt.Fprintf(&b, "%d passed, %d flaky, %d failed, %d skipped of %d.\n\n", c.Passed, c.Flaky, c.Failed, c.Skipped, c.Total())

	b.WriteString("| Project | Test | Status | Attempts | Duration | Message |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range s.Results {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
			cell(r.Project), cell(r.Title), statusMark[r.Status], r.Attempts, r.Duration.Round(time.Millisecond), cell(r.Message))
	}

	failures := s.Failures()
	if len(failures) > 0 {
		b.WriteString("\n## Failures\n")
		for _, r := range failures {
			fmt.Fprintf(&b, "\n### [%s] %s\n\n", r.Project, cell(r.Title))
			if r.Code != "" {
				fmt.Fprintf(&b, "Error code: `%s`\n\n", r.Code)
			}
			b.WriteString("```\n")
			b.WriteString(strings.ReplaceAll(r.Error, "```", "'''"))
			b.WriteString("\n```\n")
			for _, tr := range r.Traces {
				fmt.Fprintf(&b, "\nTrace: `%s`\n", tr)
			}
		}
	}
	return b.String()
}

// RenderHTML converts markdown to a sanitized, complete HTML document.
func RenderHTML(md, title string) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	doc := parser.NewWithExtensions(extensions).Parse([]byte(md))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	content := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	err := page.Execute(&buf, pageData{Title: title, Content: template.HTML(content)})
	if err != nil {
		return []byte("<!DOCTYPE html><html><head><title>Error</title></head><body><h1>Error rendering report</h1></body></html>")
	}
	return buf.Bytes()
}

// cell makes s safe inside a single markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
