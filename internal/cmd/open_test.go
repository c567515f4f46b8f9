package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faize-ai/termlink/internal/session"
)

func TestParseEnv(t *testing.T) {
	vars, err := parseEnv([]string{"TERM=xterm", "EMPTY=", "A=b=c", "TERM=dumb"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TERM": "dumb", "EMPTY": "", "A": "b=c"}, vars)

	vars, err = parseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, vars)

	for _, bad := range []string{"NOEQUALS", "=value", " =x"} {
		_, err := parseEnv([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestAttachSeqNeverGoesBackwards(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	assert.Equal(t, uint64(1_700_000_000_000), attachSeq(&session.Record{LastSeq: 12}, now))
	assert.Equal(t, uint64(1_800_000_000_000), attachSeq(&session.Record{LastSeq: 1_800_000_000_000}, now))
}

func TestShellListNamesEveryShell(t *testing.T) {
	assert.Equal(t, "cmd, powershell, pwsh, sh, bash, zsh", shellList())
}
