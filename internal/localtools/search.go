package localtools

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/gobwas/glob"
)

const (
	maxGlobResults = 200
	maxGrepMatches = 100
)

func searchTools() []*FileTool {
	return []*FileTool{
		{
			name: "glob",
			desc: "Find workspace files whose relative path matches a glob pattern. ** matches across directories.",
			params: map[string]*schema.ParameterInfo{
				"pattern": {Type: schema.String, Desc: "Glob pattern, for example **/*.go", Required: true},
			},
			handler: handleGlob,
		},
		{
			name: "grep",
			desc: "Search workspace files for lines matching a regular expression.",
			params: map[string]*schema.ParameterInfo{
				"pattern": {Type: schema.String, Desc: "Regular expression (RE2 syntax)", Required: true},
				"path":    {Type: schema.String, Desc: "Relative directory or file to search (default '.')"},
				"include": {Type: schema.String, Desc: "Only search files whose path matches this glob"},
			},
			handler: handleGrep,
		},
	}
}

// pathMatcher matches workspace-relative, slash-separated paths. A leading
// "**/" also matches at the top level.
type pathMatcher struct {
	full glob.Glob
	top  glob.Glob
}

func compileMatcher(pattern string) (*pathMatcher, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	m := &pathMatcher{full: g}
	if rest, found := strings.CutPrefix(pattern, "**/"); found {
		if m.top, err = glob.Compile(rest, '/'); err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
	}
	return m, nil
}

func (m *pathMatcher) Match(rel string) bool {
	if m.full.Match(rel) {
		return true
	}
	return m.top != nil && m.top.Match(rel)
}

// walkFiles calls fn for every regular file under root, with its path
// relative to baseDir. Hidden directories are skipped.
func walkFiles(baseDir, root string, fn func(abs, rel string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}
		if !fn(path, filepath.ToSlash(rel)) {
			return filepath.SkipAll
		}
		return nil
	})
}

func handleGlob(baseDir string, args json.RawMessage) (string, error) {
	var p struct {
		Pattern string `json:"pattern"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}
	if p.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	m, err := compileMatcher(p.Pattern)
	if err != nil {
		return "", err
	}

	var matches []string
	truncated := false
	err = walkFiles(baseDir, baseDir, func(_, rel string) bool {
		if !m.Match(rel) {
			return true
		}
		if len(matches) >= maxGlobResults {
			truncated = true
			return false
		}
		matches = append(matches, rel)
		return true
	})
	if err != nil {
		return "", fmt.Errorf("walk workspace: %w", err)
	}
	sort.Strings(matches)

	summary := fmt.Sprintf("%d files match %s", len(matches), p.Pattern)
	if truncated {
		summary += ", truncated"
	}
	return ok(summary, strings.Join(matches, "\n")), nil
}

func handleGrep(baseDir string, args json.RawMessage) (string, error) {
	var p struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Include string `json:"include"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}
	if p.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	if p.Path == "" {
		p.Path = "."
	}
	root, err := sanitizePath(baseDir, p.Path)
	if err != nil {
		return "", err
	}
	var include *pathMatcher
	if p.Include != "" {
		if include, err = compileMatcher(p.Include); err != nil {
			return "", err
		}
	}

	var hits []string
	truncated := false
	err = walkFiles(baseDir, root, func(abs, rel string) bool {
		if include != nil && !include.Match(rel) {
			return true
		}
		found, more := grepFile(abs, rel, re, maxGrepMatches-len(hits))
		hits = append(hits, found...)
		if more {
			truncated = true
			return false
		}
		return true
	})
	if err != nil {
		return "", fmt.Errorf("walk workspace: %w", err)
	}

	summary := fmt.Sprintf("%d matches for %s", len(hits), p.Pattern)
	if truncated {
		summary += ", truncated"
	}
	return ok(summary, strings.Join(hits, "\n")), nil
}

// grepFile returns up to limit matching lines as rel:line:text and whether
// more matches were left out.
func grepFile(abs, rel string, re *regexp.Regexp, limit int) ([]string, bool) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if len(out) >= limit {
			return out, true
		}
		out = append(out, fmt.Sprintf("%s:%d:%s", rel, n, line))
	}
	return out, false
}
