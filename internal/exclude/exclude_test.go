package exclude

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCompose(t *testing.T) {
	tmp := t.TempDir()
	userFile := writeFile(t, tmp, "user.lst", "*.tmp\n")
	systemFile := writeFile(t, tmp, "system.lst", "*.bak\n")
	missingSystem := filepath.Join(tmp, "nope.lst")

	tests := []struct {
		name   string
		user   string
		system string
		want   []string
	}{
		{
			name:   "user file only, system missing",
			user:   userFile,
			system: missingSystem,
			want:   []string{userFile},
		},
		{
			name:   "no user file, system loads regardless",
			user:   "",
			system: missingSystem,
			want:   []string{missingSystem},
		},
		{
			name:   "both present, user first",
			user:   userFile,
			system: systemFile,
			want:   []string{userFile, systemFile},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.user, tt.system))
		})
	}
}

func TestEngine_ReloadAndMatch(t *testing.T) {
	tmp := t.TempDir()
	rules := writeFile(t, tmp, "rules.lst", "# comment\n\n*.tmp\nbuild/\n")

	e := NewEngine()
	e.AddExcludeFilePath(rules)
	require.NoError(t, e.Reload())

	assert.True(t, e.Matches("foo.tmp"))
	assert.True(t, e.Matches("build/out.bin"))
	assert.False(t, e.Matches("notes.txt"))
}

func TestEngine_ReloadFailsOnUnreadableFile(t *testing.T) {
	e := NewEngine()
	e.AddExcludeFilePath(filepath.Join(t.TempDir(), "missing.lst"))
	assert.Error(t, e.Reload())
}

func TestEngine_NoRulesMatchesNothing(t *testing.T) {
	e := NewEngine()
	assert.False(t, e.Matches("anything"))
}
