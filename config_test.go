package sparkpipe_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/sparkpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc    string
		content string
		url     string
		tls     bool
		timeout time.Duration
		err     bool
	}{
		{
			desc: "full file",
			content: `[historian]
url = "https://historian.example.com"
tls_verification = true
timeout = "5s"
`,
			url:     "https://historian.example.com",
			tls:     true,
			timeout: 5 * time.Second,
		},
		{
			desc:    "empty section uses defaults",
			content: "[historian]\n",
			url:     "http://localhost:9030",
			timeout: 30 * time.Second,
		},
		{
			desc:    "bad timeout",
			content: "[historian]\ntimeout = \"soon\"\n",
			err:     true,
		},
		{
			desc:    "not toml",
			content: "[historian\n",
			err:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			cfg, err := sparkpipe.LoadConfig(path)
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.url, cfg.Historian.URL)
			assert.Equal(t, tc.tls, cfg.Historian.TLSVerification)
			timeout, err := cfg.Historian.TimeoutDuration()
			require.NoError(t, err)
			assert.Equal(t, tc.timeout, timeout)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := sparkpipe.LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
