package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"
)

// AssetStore reads pre-made assets by a path relative to a fixed root.
// Missing assets are reported with an error wrapping fs.ErrNotExist.
type AssetStore interface {
	ReadAsset(ctx context.Context, relPath string) ([]byte, error)
}

// CleanAssetPath turns a client supplied "/outfits/a.png" into a path that is
// relative to the asset root. Any ".." segment is rejected instead of being
// collapsed, so the result never points outside the root.
func CleanAssetPath(ref string) (string, error) {
	normalized := strings.ReplaceAll(ref, "\\", "/")
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", &ResolutionError{
				Kind:    PathTraversal,
				Message: fmt.Sprintf("Path escapes asset root: %s", ref),
			}
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+normalized), "/")
	if rel == "" {
		return "", &ResolutionError{
			Kind:    FileNotFound,
			Message: fmt.Sprintf("File not found: %s", ref),
		}
	}
	return rel, nil
}

// FSAssetStore serves assets from a directory on disk.
type FSAssetStore struct {
	Root string
}

func (s FSAssetStore) ReadAsset(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// OpenInRoot also refuses symlinks that lead out of the root.
	f, err := os.OpenInRoot(s.Root, relPath)
	if err != nil {
		return nil, openAssetError(relPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", relPath, fs.ErrNotExist)
	}
	return io.ReadAll(f)
}

// openAssetError keeps "not found" for missing files and for links that lead
// out of the root. Permission and resource errors are returned as they are.
func openAssetError(relPath string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) || escapesRoot(err) {
		return fmt.Errorf("open %s: %v: %w", relPath, err, fs.ErrNotExist)
	}
	return fmt.Errorf("open %s: %w", relPath, err)
}

// os.Root has no exported error for escapes, only this message.
func escapesRoot(err error) bool {
	return strings.Contains(err.Error(), "path escapes from parent")
}
