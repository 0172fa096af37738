package report

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"

	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
	"github.com/kuitang/notifier-e2e/internal/s3client"
	"github.com/kuitang/notifier-e2e/internal/suite"
)

const (
	IndexFile   = "index.html"
	ResultsFile = "results.json"
	SummaryFile = "summary.md"
)

// Files are the paths Write produced.
type Files struct {
	Dir     string
	Index   string
	Results string
	Summary string
}

type resultsDocument struct {
	*suite.Summary
	Counts suite.Counts `json:"counts"`
	OK     bool         `json:"ok"`
}

// Write renders s into dir, creating it if needed. Existing report files are replaced;
// the traces directory is left alone.
func Write(dir string, s *suite.Summary) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IO, "create report directory", err)
	}
	files := &Files{
		Dir:     dir,
		Index:   filepath.Join(dir, IndexFile),
		Results: filepath.Join(dir, ResultsFile),
		Summary: filepath.Join(dir, SummaryFile),
	}

	results, err := json.MarshalIndent(resultsDocument{Summary: s, Counts: s.Counts(), OK: s.OK()}, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encode results", err)
	}
	md := Markdown(s)

	for _, f := range []struct {
		path string
		data []byte
	}{
		{files.Results, results},
		{files.Summary, []byte(md)},
		{files.Index, RenderHTML(md, "Notifier e2e report "+s.RunID)},
	} {
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return nil, errs.Wrap(errs.IO, "write "+f.path, err)
		}
	}
	return files, nil
}

// Publisher uploads a written report to a bucket under prefix/run-id/.
type Publisher struct {
	client *s3client.Client
	prefix string
}

// NewPublisher returns a publisher writing below prefix ("reports" when empty).
func NewPublisher(client *s3client.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "reports"
	}
	return &Publisher{client: client, prefix: prefix}
}

// Publish uploads the report files and any traces referenced by s. It returns the
// URI of the uploaded index page.
func (p *Publisher) Publish(ctx context.Context, files *Files, s *suite.Summary) (string, error) {
	base := path.Join(p.prefix, s.RunID)
	uploads := []struct {
		local, key, contentType string
	}{
		{files.Index, path.Join(base, IndexFile), "text/html; charset=utf-8"},
		{files.Results, path.Join(base, ResultsFile), "application/json"},
		{files.Summary, path.Join(base, SummaryFile), "text/markdown; charset=utf-8"},
	}
	for _, r := range s.Results {
		for _, tr := range r.Traces {
			uploads = append(uploads, struct{ local, key, contentType string }{
				tr, path.Join(base, "traces", filepath.Base(tr)), "application/zip",
			})
		}
	}

	log := obs.From(ctx).With("pkg", "report")
	for _, u := range uploads {
		data, err := os.ReadFile(u.local)
		if err != nil {
			if os.IsNotExist(err) && u.contentType == "application/zip" {
				// A trace is missing when the attempt failed before its context opened.
				log.Debug("trace_missing", "path", u.local)
				continue
			}
			return "", errs.Wrap(errs.IO, "read "+u.local, err)
		}
		if err := p.client.PutObject(ctx, u.key, data, u.contentType); err != nil {
			return "", errs.Wrap(errs.IO, "upload "+u.key, err)
		}
	}

	uri := p.client.ObjectURI(path.Join(base, IndexFile))
	log.Info("report_published", "uri", uri, "objects", len(uploads))
	return uri, nil
}
