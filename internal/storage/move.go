package storage

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// fileOps holds the filesystem calls a move depends on so failure paths can be exercised.
type fileOps struct {
	rename    func(oldpath, newpath string) error
	removeAll func(path string) error
}

var osFileOps = fileOps{rename: os.Rename, removeAll: os.RemoveAll}

const stagingSuffix = ".moving"

func movePath(ops fileOps, source string, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}

	if err := ops.rename(source, destination); err == nil {
		return nil
	} else if !isCrossDeviceRenameError(err) {
		return err
	}

	// Across devices the source is first taken off its live path so it is never
	// visible at both locations. A failed copy puts it back.
	staging := source + stagingSuffix
	if err := ops.rename(source, staging); err != nil {
		return err
	}

	if err := copyPathRecursive(staging, destination); err != nil {
		_ = ops.removeAll(destination)
		if restoreErr := ops.rename(staging, source); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}

	if err := ops.removeAll(staging); err != nil {
		slog.Warn("stale move staging left behind", "path", staging, "error", err)
	}

	return nil
}

func isCrossDeviceRenameError(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && strings.Contains(strings.ToLower(linkErr.Err.Error()), "cross-device") {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "cross-device")
}

func copyPathRecursive(source string, destination string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(source, destination, info.Mode())
	}

	if err := os.MkdirAll(destination, info.Mode().Perm()); err != nil {
		return err
	}

	return filepath.WalkDir(source, func(current string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, relErr := filepath.Rel(source, current)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		target := filepath.Join(destination, rel)
		entryInfo, infoErr := entry.Info()
		if infoErr != nil {
			return infoErr
		}

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, entryInfo.Mode().Perm())
		case entryInfo.Mode()&os.ModeSymlink != 0:
			link, linkErr := os.Readlink(current)
			if linkErr != nil {
				return linkErr
			}
			return os.Symlink(link, target)
		default:
			return copyFile(current, target, entryInfo.Mode())
		}
	})
}

func copyFile(source string, destination string, mode os.FileMode) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}

	output, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode.Perm())
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(output, input)
	closeErr := output.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
