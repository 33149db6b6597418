package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Defaults
		wantErr string
	}{
		{name: "empty", data: "", want: Defaults{}},
		{
			name: "scalars and lists",
			data: "blacklist:\n  words: [free, crypto]\n  max_hits: 2\nmessage_length:\n  min_length: 5\n",
			want: Defaults{
				"blacklist":      {"words": []any{"free", "crypto"}, "max_hits": 2},
				"message_length": {"min_length": 5},
			},
		},
		{
			name: "nested payload",
			data: "external_service:\n  timeout: 1.5\n  payload:\n    source: spamd\n",
			want: Defaults{"external_service": {"timeout": 1.5, "payload": map[string]any{"source": "spamd"}}},
		},
		{name: "empty check", data: "emoji:\n", want: Defaults{"emoji": {}}},
		{name: "not a mapping", data: "emoji: 5\n", wantErr: `params of "emoji" must be a mapping`},
		{name: "broken yaml", data: "emoji: [\n", wantErr: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseDefaults([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "checks.yml")
		require.NoError(t, os.WriteFile(file, []byte("links:\n  max_links: 1\nemoji:\n  max_emoji: 0\n"), 0o600))

		res, err := LoadDefaults(file)
		require.NoError(t, err)
		assert.Equal(t, []string{"emoji", "links"}, res.Names())
		assert.Equal(t, 1, res["links"].Int("max_links", 3))
		assert.Equal(t, 0, res["emoji"].Int("max_emoji", 2))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDefaults(filepath.Join(t.TempDir(), "nope.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read check defaults")
	})

	t.Run("bad content", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "checks.yml")
		require.NoError(t, os.WriteFile(file, []byte("- just\n- a list\n"), 0o600))
		_, err := LoadDefaults(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse check defaults")
	})
}
