package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoadDefaults checks an empty path yields a valid default config.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1024, cfg.Queue.Depth)
	require.True(t, cfg.Logging.Development)
	require.Empty(t, cfg.Senders)
}

// TestLoadSenders parses a full sender declaration.
func TestLoadSenders(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
queue:
  depth: 64
senders:
  - name: bulk-out
    sink: httpbulk
    batch_size: 100
    workers: 4
    flush_interval_seconds: 2
    encoder: json
    filter: gzip
    http:
      url: http://bulk.example.com/_bulk
      timeout_seconds: 15
  - name: socket-out
    sink: tcp
    encoder: text
    encoder_field: message
    tcp:
      address: logs.example.com:514
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Senders, 2)

	bulk := cfg.Senders[0]
	require.Equal(t, "bulk-out", bulk.EffectiveName())
	require.Equal(t, 100, bulk.BatchSize)
	require.Equal(t, 4, bulk.Workers)
	require.Equal(t, 2*time.Second, bulk.FlushInterval())
	require.Equal(t, 15*time.Second, bulk.HTTPTimeout())
	require.Equal(t, "gzip", bulk.Filter)

	sock := cfg.Senders[1]
	require.Equal(t, "socket-out", sock.Name)
	require.Equal(t, "logs.example.com:514", sock.TCP.Address)
}

// TestValidateRejectsBadSenders covers the per-sender validation paths.
func TestValidateRejectsBadSenders(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing sink",
			body: "senders:\n  - name: a\n",
			want: "sink is required",
		},
		{
			name: "unknown sink",
			body: "senders:\n  - sink: kafka\n",
			want: `unknown sink "kafka"`,
		},
		{
			name: "httpbulk without url",
			body: "senders:\n  - sink: httpbulk\n",
			want: "http.url is required",
		},
		{
			name: "tcp without address",
			body: "senders:\n  - sink: tcp\n",
			want: "tcp.address is required",
		},
		{
			name: "pubsub incomplete",
			body: "senders:\n  - sink: pubsub\n    pubsub:\n      project_id: p\n",
			want: "pubsub.project_id and pubsub.topic_name",
		},
		{
			name: "duplicate names",
			body: "senders:\n  - sink: memory\n    name: dup\n  - sink: memory\n    name: dup\n",
			want: "duplicate sender name",
		},
		{
			name: "unknown encoder",
			body: "senders:\n  - sink: memory\n    encoder: xml\n",
			want: `unknown encoder "xml"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
