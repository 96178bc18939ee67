package commandtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderLongestPrefixWins(t *testing.T) {
	r := New().
		On("git", "generic").
		On("git rev-parse", "main\n").
		OnError("lsof", errors.New("exit status 1"))

	out, err := r.Run(context.Background(), "/tmp", "git", "rev-parse", "--abbrev-ref", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "main\n", string(out))

	out, err = r.Run(context.Background(), "", "git", "status")
	require.NoError(t, err)
	assert.Equal(t, "generic", string(out))

	_, err = r.Run(context.Background(), "", "lsof", "-ti", ":5173")
	assert.Error(t, err)

	_, err = r.Run(context.Background(), "", "ps")
	assert.Error(t, err)

	assert.Len(t, r.Calls(), 4)
	assert.Equal(t, 2, r.Count("git"))
	assert.Equal(t, "/tmp", r.Calls()[0].Dir)

	r.Reset()
	assert.Empty(t, r.Calls())
}

func TestRecorderSpawnIsRecorded(t *testing.T) {
	r := New()
	cmd := r.CommandContext(context.Background(), "npm", "run", "dev")
	require.NotNil(t, cmd)
	assert.Equal(t, 1, r.Count("npm run dev"))
}
