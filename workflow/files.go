package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BaSui01/agentpipe/types"
)

// MarkdownFileWriter extracts fenced file blocks from agent output and
// writes them under the project root.
//
// Two block shapes are recognized:
//
//	FILE: path/to/file.go
//	```go
//	...content...
//	```
//
// and a fence whose info string names the path directly:
//
//	```go:path/to/file.go
//	...content...
//	```
type MarkdownFileWriter struct{}

var (
	fileHeader = regexp.MustCompile(`(?m)^(?:#{1,4}\s*)?FILE:\s*(\S+)\s*$`)
	fenceOpen  = regexp.MustCompile("(?m)^```([^\\s`]*)\\s*$")
)

// ParseAndWrite implements FileWriter. Paths escaping the project root are
// rejected for the whole batch; nothing is written in that case.
func (MarkdownFileWriter) ParseAndWrite(projectRoot, raw string) ([]string, error) {
	blocks := parseFileBlocks(raw)
	if len(blocks) == 0 {
		return nil, nil
	}

	for _, b := range blocks {
		if !pathWithinRoot(b.path) {
			return nil, types.NewError(types.ErrValidation,
				fmt.Sprintf("refusing to write outside project root: %q", b.path))
		}
	}

	written := make([]string, 0, len(blocks))
	for _, b := range blocks {
		abs := filepath.Join(projectRoot, filepath.FromSlash(b.path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return written, types.NewError(types.ErrValidation,
				fmt.Sprintf("create directory for %q", b.path)).WithCause(err)
		}
		if err := os.WriteFile(abs, []byte(b.content), 0o644); err != nil {
			return written, types.NewError(types.ErrValidation,
				fmt.Sprintf("write %q", b.path)).WithCause(err)
		}
		written = append(written, b.path)
	}
	return written, nil
}

type fileBlock struct {
	path    string
	content string
}

func parseFileBlocks(raw string) []fileBlock {
	var blocks []fileBlock
	lines := strings.Split(raw, "\n")

	pendingPath := ""
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := fileHeader.FindStringSubmatch(line); m != nil {
			pendingPath = m[1]
			continue
		}

		m := fenceOpen.FindStringSubmatch(line)
		if m == nil {
			if strings.TrimSpace(line) != "" {
				pendingPath = ""
			}
			continue
		}

		path := pendingPath
		if idx := strings.Index(m[1], ":"); idx >= 0 {
			path = m[1][idx+1:]
		}
		pendingPath = ""

		var body []string
		closed := false
		for i++; i < len(lines); i++ {
			if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				closed = true
				break
			}
			body = append(body, lines[i])
		}
		if !closed || path == "" {
			continue
		}
		blocks = append(blocks, fileBlock{
			path:    path,
			content: strings.Join(body, "\n") + "\n",
		})
	}
	return blocks
}

// pathWithinRoot rejects absolute paths and any path that traverses above
// the root after cleaning.
func pathWithinRoot(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
