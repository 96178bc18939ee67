package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/devdash/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnder(t *testing.T) {
	root := t.TempDir()

	t.Run("direct child", func(t *testing.T) {
		got, err := ResolveUnder(root, "demo-app")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "demo-app"), got)
		assert.Equal(t, filepath.Clean(root), filepath.Dir(got))
	})

	t.Run("root with trailing separator", func(t *testing.T) {
		got, err := ResolveUnder(root+string(filepath.Separator), "demo-app")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "demo-app"), got)
	})

	escapes := []string{"..", "../etc", "a/../../b", "nested/child", "", "."}
	for _, name := range escapes {
		t.Run("escape "+name, func(t *testing.T) {
			_, err := ResolveUnder(root, name)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodePathEscape))
		})
	}
}

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/projects", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects"), got)

	t.Setenv("DEVDASH_TEST_DIR", "/tmp/devdash")
	got, err = Expand("${DEVDASH_TEST_DIR}/p", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/tmp/devdash/p"), got)

	got, err = Expand("../projects", "/srv/dashboard")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/srv/projects"), got)
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(file))
	assert.False(t, IsDir(filepath.Join(dir, "missing")))
}
