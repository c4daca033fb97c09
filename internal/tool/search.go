package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openworkhq/openwork/internal/sandbox"
)

const (
	// defaultSearchMaxResults bounds matches returned per invocation.
	defaultSearchMaxResults = 100
	// defaultSearchMaxFileSize skips files larger than this.
	defaultSearchMaxFileSize = 10 * 1024 * 1024
	// searchLineCap truncates very long matching lines.
	searchLineCap = 500
)

// SearchTool searches file contents inside the sandbox with a regular
// expression.
type SearchTool struct {
	sb          *sandbox.Sandbox
	maxFileSize int64
}

// NewSearchTool creates a search tool bound to the given sandbox.
func NewSearchTool(sb *sandbox.Sandbox) *SearchTool {
	return &SearchTool{sb: sb, maxFileSize: defaultSearchMaxFileSize}
}

// Schema implements Tool.
func (t *SearchTool) Schema() Schema {
	return Schema{
		Name:        "search",
		Description: "Search for a regex pattern in files under a path",
		Params: []Param{
			{Name: "pattern", Type: "string", Description: "Regular expression to search for", Required: true},
			{Name: "path", Type: "string", Description: "Directory or file to search in", Required: true},
			{Name: "file_pattern", Type: "string", Description: "Glob to match file names, e.g. *.go (default all files)"},
			{Name: "case_sensitive", Type: "boolean", Description: "Match case sensitively (default false)"},
			{Name: "max_results", Type: "integer", Description: "Maximum matches to return (default 100)"},
		},
	}
}

// Execute implements Tool.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		Pattern       string `json:"pattern"`
		Path          string `json:"path"`
		FilePattern   string `json:"file_pattern"`
		CaseSensitive bool   `json:"case_sensitive"`
		MaxResults    int    `json:"max_results"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	resolved, err := t.sb.Resolve(params.Path)
	if err != nil {
		return Fail("%v", err)
	}

	expr := params.Pattern
	if !params.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Fail("invalid regex pattern: %v", err)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchMaxResults
	}
	filePattern := params.FilePattern
	if filePattern == "" {
		filePattern = "*"
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return Fail("path not found: %s", params.Path)
	}

	var matches []string
	filesSearched := 0

	searchOne := func(path string) error {
		filesSearched++
		found, err := t.searchFile(path, re, maxResults-len(matches))
		if err != nil {
			// Unreadable files are skipped, not fatal.
			return nil
		}
		matches = append(matches, found...)
		return nil
	}

	if !info.IsDir() {
		_ = searchOne(resolved)
	} else {
		walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if len(matches) >= maxResults {
				return filepath.SkipAll
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(filePattern, d.Name()); !ok {
				return nil
			}
			if fi, err := d.Info(); err != nil || fi.Size() > t.maxFileSize {
				return nil
			}
			return searchOne(path)
		})
		if walkErr != nil && walkErr != filepath.SkipAll {
			return Fail("search interrupted: %v", walkErr)
		}
	}

	if len(matches) == 0 {
		return Result{Success: true, Output: fmt.Sprintf("No matches in %d files", filesSearched)}
	}

	header := fmt.Sprintf("%d matches in %d files searched", len(matches), filesSearched)
	if len(matches) >= maxResults {
		header += " (result limit reached)"
	}
	return Result{Success: true, Output: header + "\n" + strings.Join(matches, "\n")}
}

// searchFile scans one file line by line, returning up to limit
// formatted "path:line: content" matches.
func (t *SearchTool) searchFile(path string, re *regexp.Regexp, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var results []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		content := strings.TrimSpace(line)
		if len(content) > searchLineCap {
			content = content[:searchLineCap]
		}
		results = append(results, fmt.Sprintf("%s:%d: %s", path, lineNum, content))
		if len(results) >= limit {
			break
		}
	}
	return results, scanner.Err()
}
