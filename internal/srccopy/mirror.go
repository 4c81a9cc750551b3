package srccopy

import (
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

type mirror struct {
	src string
	dst string
}

func (m *mirror) paths(f string) (src, dst string) {
	f = filepath.FromSlash(f)
	return filepath.Join(m.src, f), filepath.Join(m.dst, f)
}

// update makes the mirror copy of f match the source. It returns the new
// state entry, or nil for files that cannot be mirrored, and whether
// anything was written.
func (m *mirror) update(f string, prev *entry) (*entry, bool, error) {
	sp, dp := m.paths(f)
	fi, err := os.Lstat(sp)
	if err != nil {
		return nil, false, err
	}

	switch {
	case fi.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(sp)
		if err != nil {
			return nil, false, err
		}
		e := &entry{Link: true, Hash: hashString(target)}
		if cur, err := os.Readlink(dp); err == nil && cur == target {
			return e, false, nil
		}
		if err := m.clearParents(dp); err != nil {
			return nil, false, err
		}
		if err := makeRoom(dp); err != nil {
			return nil, false, err
		}
		return e, true, os.Symlink(target, dp)

	case !fi.Mode().IsRegular():
		return nil, false, nil
	}

	e := &entry{Size: fi.Size(), MTime: fi.ModTime().UnixNano()}
	if prev != nil && !prev.Link && prev.Size == e.Size && prev.MTime == e.MTime {
		e.Hash = prev.Hash
	} else if e.Hash, err = hashFile(sp); err != nil {
		return nil, false, err
	}

	if prev != nil && !prev.Link && prev.Hash == e.Hash {
		dfi, err := os.Lstat(dp)
		if err == nil && dfi.Mode().IsRegular() && dfi.Size() == e.Size && dfi.Mode().Perm() == fi.Mode().Perm() {
			return e, false, nil
		}
	}
	if err := m.clearParents(dp); err != nil {
		return nil, false, err
	}
	return e, true, copyFile(sp, dp, fi)
}

// remove deletes the mirror copy of f and the directories it leaves empty.
// Directories are never removed by name, they may hold generated files.
func (m *mirror) remove(f string) (bool, error) {
	_, dp := m.paths(f)
	fi, err := os.Lstat(dp)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if fi.IsDir() {
		return false, nil
	}
	if err := os.Remove(dp); err != nil {
		return false, err
	}
	for dir := filepath.Dir(dp); strings.HasPrefix(dir, m.dst+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return true, nil
}

// clearParents removes files, like untracked build outputs, that are in the
// way of the parent directories of path.
func (m *mirror) clearParents(path string) error {
	rel, err := filepath.Rel(m.dst, filepath.Dir(path))
	if err != nil || rel == "." {
		return err
	}
	dir := m.dst
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, elem)
		fi, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return os.Remove(dir)
		}
	}
	return nil
}

// makeRoom makes room for a new file at path.
func makeRoom(path string) error {
	fi, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return os.MkdirAll(filepath.Dir(path), 0o755)
	case err != nil:
		return err
	case fi.IsDir():
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// copyFile replaces dst with a copy of src that has the same permissions
// and modification time.
func copyFile(src, dst string, fi fs.FileInfo) error {
	if dfi, err := os.Lstat(dst); err == nil && dfi.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmp.Name(), fi.ModTime(), fi.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashString(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
