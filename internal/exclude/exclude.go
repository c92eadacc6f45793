// Package exclude decides which exclude-rule files apply to a session
// and matches paths against the loaded rules.
package exclude

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultSystemExcludeFile is the well-known system-wide exclude list.
var DefaultSystemExcludeFile = "/etc/davsync/sync-exclude.lst"

// Compose returns the ordered list of exclude files to load. The user
// file, when given, always loads and loads first. The system file loads
// when no user file was given, or whenever it exists so that system
// rules supplement user rules.
func Compose(userFile, systemFile string) []string {
	var files []string
	hasUserFile := userFile != ""

	if hasUserFile {
		files = append(files, userFile)
	}
	if !hasUserFile || fileExists(systemFile) {
		files = append(files, systemFile)
	}
	return files
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Engine matches paths against gitignore-style rules loaded from a set
// of exclude files.
type Engine struct {
	files   []string
	matcher *gitignore.GitIgnore
}

func NewEngine() *Engine {
	return &Engine{}
}

// AddExcludeFilePath registers a rule file for the next Reload.
func (e *Engine) AddExcludeFilePath(path string) {
	e.files = append(e.files, path)
}

// Files returns the registered rule files in load order.
func (e *Engine) Files() []string {
	return e.files
}

// Reload parses all registered files into a single matcher. Any
// unreadable file fails the reload; syncing with a partial rule set
// risks inconsistent behavior.
func (e *Engine) Reload() error {
	var lines []string
	for _, file := range e.files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read exclude file %s: %w", file, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
		slog.Debug("loaded exclude file", "path", file)
	}

	e.matcher = gitignore.CompileIgnoreLines(lines...)
	return nil
}

// Matches reports whether path is excluded by the loaded rules.
func (e *Engine) Matches(path string) bool {
	if e.matcher == nil {
		return false
	}
	return e.matcher.MatchesPath(path)
}
