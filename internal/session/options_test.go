package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProxy(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *ProxyConfig
		wantErr bool
	}{
		{
			name: "plain http proxy",
			in:   "http://192.168.1.1:8080",
			want: &ProxyConfig{Host: "192.168.1.1", Port: 8080},
		},
		{
			name:    "no colons",
			in:      "notaproxy",
			wantErr: true,
		},
		{
			name:    "missing port",
			in:      "http://host",
			wantErr: true,
		},
		{
			name:    "too many tokens",
			in:      "http://host:8080:extra",
			wantErr: true,
		},
		{
			name:    "non-numeric port",
			in:      "http://host:notaport",
			wantErr: true,
		},
		{
			name:    "empty host",
			in:      "http://:8080",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProxy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProxyConfig_URL(t *testing.T) {
	p := &ProxyConfig{Host: "proxy.local", Port: 3128}
	assert.Equal(t, "http://proxy.local:3128", p.URL())
}

func TestOptionsValidate_MissingSourceDir(t *testing.T) {
	opts := &Options{
		SourceDir: filepath.Join(t.TempDir(), "does-not-exist"),
		TargetURL: "https://cloud.example.com",
	}
	assert.Error(t, opts.Validate())
}

func TestOptionsValidate_ResolvesSourceDir(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{SourceDir: dir, TargetURL: "https://cloud.example.com"}

	require.NoError(t, opts.Validate())
	assert.True(t, filepath.IsAbs(opts.SourceDir))
	assert.Equal(t, string(filepath.Separator), opts.SourceDir[len(opts.SourceDir)-1:])
}

func TestOptionsValidate_NegativeRetries(t *testing.T) {
	opts := &Options{
		SourceDir:      t.TempDir(),
		TargetURL:      "https://cloud.example.com",
		MaxSyncRetries: -1,
	}
	assert.Error(t, opts.Validate())
}
