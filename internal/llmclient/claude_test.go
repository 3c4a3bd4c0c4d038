package llmclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "content envelope field",
			raw:  `{"content": "hello"}`,
			want: "hello",
		},
		{
			name: "result envelope field",
			raw:  `{"result": "world"}`,
			want: "world",
		},
		{
			name: "raw JSON object with no envelope match",
			raw:  `prefix noise {"files": ["a.go"]} trailing noise`,
			want: `{"files": ["a.go"]}`,
		},
		{
			name: "raw JSON array",
			raw:  `noise [1, 2, 3] noise`,
			want: `[1, 2, 3]`,
		},
		{
			name: "unrecognized plain text falls through untouched",
			raw:  "no JSON here at all",
			want: "no JSON here at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseResponse(tt.raw))
		})
	}
}

func writeFakeProviderScript(t *testing.T, stdout string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-claude.sh")
	script := "#!/bin/sh\ncat >/dev/null\necho '" + stdout + "'\nexit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestCLIClientCompleteExtractsEnvelopeContent(t *testing.T) {
	binary := writeFakeProviderScript(t, `{"content": "the answer"}`)
	c := New(binary, "", time.Second)

	got, err := c.Complete(context.Background(), "what files should change?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", got)
}

func TestCLIClientCompleteFailsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failing.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\necho boom >&2\nexit 1\n"), 0755))

	c := New(path, "", time.Second)
	_, err := c.Complete(context.Background(), "prompt")
	assert.Error(t, err)
}
