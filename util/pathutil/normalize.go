package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/grovetools/devdash/errors"
)

// ResolveUnder joins name onto root and verifies the result is a direct child
// of root. It is a lexical check: name is expected to be sanitized already and
// no filesystem access happens here.
func ResolveUnder(root, name string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve projects root")
	}
	absRoot = filepath.Clean(absRoot)

	resolved := filepath.Clean(filepath.Join(absRoot, name))

	if !isDirectChild(absRoot, resolved) {
		return "", errors.PathEscape(name)
	}
	return resolved, nil
}

func isDirectChild(root, path string) bool {
	parent := filepath.Dir(path)
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.EqualFold(parent, root) && !strings.EqualFold(path, root)
	}
	return parent == root && path != root
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
