// Package artifacts writes debug artifacts such as failure screenshots.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/go-homedir"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileSink stores artifacts as files under one directory.
type FileSink struct {
	dir string
}

// NewFileSink creates dir (after ~ expansion) if needed.
func NewFileSink(dir string) (*FileSink, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expand artifacts dir: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &FileSink{dir: expanded}, nil
}

// Dir returns the resolved directory.
func (s *FileSink) Dir() string { return s.dir }

// SavePNG writes <dir>/<scenarioID>-<reason>.png, replacing any earlier
// artifact of the same name.
func (s *FileSink) SavePNG(ctx context.Context, scenarioID, reason string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.png", unsafeName.ReplaceAllString(scenarioID, "_"), unsafeName.ReplaceAllString(reason, "_"))
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move artifact into place: %w", err)
	}
	return path, nil
}
