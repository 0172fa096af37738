package suite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/kuitang/notifier-e2e/internal/errs"
)

// Filter selects projects and tests, like --project and --grep.
type Filter struct {
	// Projects are glob patterns matched against project names. Empty selects all.
	Projects []string
	// NoDeps drops dependency projects that were not selected by name.
	NoDeps bool
	// Grep keeps only tests whose title matches.
	Grep *regexp.Regexp
	// GrepInvert drops tests whose title matches.
	GrepInvert *regexp.Regexp
}

// Select applies f to projects. Dependency projects pulled in by a selected
// project keep all of their tests; grep only narrows the projects that were asked for.
// A project pattern that matches nothing is a configuration error.
func Select(projects []Project, f Filter) ([]Project, error) {
	byName := make(map[string]Project, len(projects))
	for _, p := range projects {
		byName[p.Name] = p
	}

	selected := make(map[string]bool)
	if len(f.Projects) == 0 {
		for _, p := range projects {
			selected[p.Name] = true
		}
	}
	for _, pattern := range f.Projects {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errs.Wrap(errs.Config, fmt.Sprintf("invalid --project pattern %q", pattern), err)
		}
		matched := false
		for _, p := range projects {
			if g.Match(p.Name) {
				selected[p.Name] = true
				matched = true
			}
		}
		if !matched {
			return nil, errs.New(errs.Config, fmt.Sprintf("project %q not found; available: %s", pattern, strings.Join(names(projects), ", ")))
		}
	}

	// Projects left without tests after grep do not pull in their dependencies.
	narrowed := make(map[string]Project, len(selected))
	for name := range selected {
		p := byName[name]
		p.Tests = grep(p.Tests, f)
		if len(p.Tests) > 0 {
			narrowed[name] = p
		}
	}

	required := make(map[string]bool)
	if !f.NoDeps {
		var need func(name string)
		need = func(name string) {
			for _, dep := range byName[name].Dependencies {
				if _, ok := byName[dep]; !ok || required[dep] {
					continue
				}
				required[dep] = true
				need(dep)
			}
		}
		for name := range narrowed {
			need(name)
		}
	}

	var out []Project
	for _, p := range projects {
		if required[p.Name] {
			out = append(out, p)
		} else if n, ok := narrowed[p.Name]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func grep(tests []Test, f Filter) []Test {
	if f.Grep == nil && f.GrepInvert == nil {
		return tests
	}
	var out []Test
	for _, t := range tests {
		if f.Grep != nil && !f.Grep.MatchString(t.Title) {
			continue
		}
		if f.GrepInvert != nil && f.GrepInvert.MatchString(t.Title) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func names(projects []Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.Name)
	}
	return out
}

// List renders the catalog one test per line, as "[project] › title".
func List(projects []Project) []string {
	var lines []string
	for _, p := range projects {
		for _, t := range p.Tests {
			lines = append(lines, "["+p.Name+"] › "+t.Title)
		}
	}
	return lines
}
