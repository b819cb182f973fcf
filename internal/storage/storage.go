package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"project-reaper/internal/model"
)

// Backend is what the destroy workflow needs from repository storage.
type Backend interface {
	Exists(path string) (bool, error)
	Move(src string, dst string) error
	RemoveAll(path string) error
	ListRefs(repoPath string) ([]string, error)
}

// Storage addresses repositories on a local filesystem below a fixed root.
type Storage struct {
	validator *PathValidator
	ops       fileOps
}

func New(root string) (*Storage, error) {
	validator, err := NewPathValidator(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(validator.RootAbs(), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &Storage{validator: validator, ops: osFileOps}, nil
}

func (s *Storage) RootAbs() string {
	return s.validator.RootAbs()
}

func (s *Storage) Resolve(relPath string) (string, error) {
	return s.validator.ResolvePath(relPath)
}

func (s *Storage) MkdirAll(relPath string, perm fs.FileMode) error {
	resolved, err := s.Resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(resolved, perm); err != nil {
		return fmt.Errorf("mkdir %q: %w", relPath, err)
	}

	return nil
}

func (s *Storage) Exists(relPath string) (bool, error) {
	resolved, err := s.Resolve(relPath)
	if err != nil {
		return false, err
	}

	if _, err := os.Lstat(resolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", relPath, err)
	}

	return true, nil
}

// Move renames src to dst. It refuses to overwrite an existing dst.
func (s *Storage) Move(src string, dst string) error {
	srcResolved, err := s.Resolve(src)
	if err != nil {
		return err
	}

	dstResolved, err := s.Resolve(dst)
	if err != nil {
		return err
	}

	if srcResolved == s.RootAbs() || dstResolved == s.RootAbs() {
		return fmt.Errorf("%w: refusing to move storage root", model.ErrInvalidInput)
	}

	if _, err := os.Lstat(dstResolved); err == nil {
		return fmt.Errorf("%w: %q already exists", model.ErrPathConflict, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %q: %w", dst, err)
	}

	if err := movePath(s.ops, srcResolved, dstResolved); err != nil {
		return fmt.Errorf("move %q to %q: %w", src, dst, err)
	}

	return nil
}

// RemoveAll deletes relPath recursively. A missing path is not an error.
func (s *Storage) RemoveAll(relPath string) error {
	resolved, err := s.Resolve(relPath)
	if err != nil {
		return err
	}

	if resolved == s.RootAbs() {
		return fmt.Errorf("%w: refusing to remove storage root", model.ErrInvalidInput)
	}

	if err := os.RemoveAll(resolved); err != nil {
		return fmt.Errorf("remove %q: %w", relPath, err)
	}

	return nil
}

// ListRefs returns the branch names of a bare repository, read from loose
// refs under refs/heads and from packed-refs. A missing repository yields nil.
func (s *Storage) ListRefs(repoPath string) ([]string, error) {
	resolved, err := s.Resolve(repoPath)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}

	headsDir := filepath.Join(resolved, "refs", "heads")
	walkErr := filepath.WalkDir(headsDir, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(headsDir, current)
		if relErr != nil {
			return relErr
		}
		seen[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("read refs of %q: %w", repoPath, walkErr)
	}

	packed, err := readPackedHeads(filepath.Join(resolved, "packed-refs"))
	if err != nil {
		return nil, fmt.Errorf("read packed-refs of %q: %w", repoPath, err)
	}
	for _, name := range packed {
		seen[name] = struct{}{}
	}

	if len(seen) == 0 {
		return nil, nil
	}

	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs, nil
}

func readPackedHeads(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	const prefix = "refs/heads/"
	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || !strings.HasPrefix(fields[1], prefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(fields[1], prefix))
	}

	return names, scanner.Err()
}
