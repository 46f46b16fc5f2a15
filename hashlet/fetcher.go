package hashlet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound reports a bundle the repository does not carry at the
// requested revision.
var ErrNotFound = errors.New("hashlet not found")

// DirFetcher serves bundles from a local repository laid out as
// <root>/<name>/<revision>/hashlet.json.
type DirFetcher struct {
	Root string
}

func (f *DirFetcher) Fetch(ctx context.Context, repoRef, revision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(f.Root, repoRef, revision)
	if _, err := os.Stat(filepath.Join(dir, "hashlet.json")); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s@%s: %w", repoRef, revision, ErrNotFound)
		}
		return "", err
	}
	return dir, nil
}
