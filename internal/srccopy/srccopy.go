// Copyright 2025 The osmo-dev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package srccopy mirrors the working tree of a checkout into a scratch
// directory, so that autoreconf and configure can write into their source
// tree without touching the developer's checkout.
//
// Layout below the destination directory:
//
//	<dest>/
//	  <project>/              # the mirror
//	  .sync/<project>.json    # what was synced last, and for which token
//	  .sync/<project>.lock    # held while syncing
package srccopy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/qiniu/x/log"

	"github.com/osmocom/osmo-dev/internal/vcs"
)

const stateDir = ".sync"

// SyncError reports a failure to read the working tree or to update the
// mirror.
type SyncError struct {
	Project string
	Op      string
	Path    string // empty if the error is not about one file
	Err     error
}

func (e *SyncError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sync %s: %s: %v", e.Project, e.Op, e.Err)
	}
	return fmt.Sprintf("sync %s: %s %s: %v", e.Project, e.Op, e.Path, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Result summarizes one sync.
type Result struct {
	// Skipped is set if the mirror was already synced for the token.
	Skipped   bool
	Copied    []string
	Removed   []string
	Unchanged int
}

// Syncer mirrors checkouts below SrcDir into DestDir.
type Syncer struct {
	SrcDir  string
	DestDir string
	VCS     vcs.VCS
}

// New creates a Syncer that queries the working trees with git.
func New(srcDir, destDir string) *Syncer {
	return &Syncer{SrcDir: srcDir, DestDir: destDir, VCS: vcs.NewGitVCS()}
}

// MirrorDir returns the mirror of project.
func (s *Syncer) MirrorDir(project string) string {
	return filepath.Join(s.DestDir, project)
}

// Sync brings the mirror of project up to date with its working tree. The
// mirror then holds every file git reports as tracked or as untracked and
// not ignored, minus the files deleted in the working tree. Only files that
// changed since the last sync are written, so timestamps inside the mirror
// keep their meaning for make. Files in the mirror that were never synced,
// like generated build files, are left alone.
//
// A non-empty token makes repeated calls with the same token a no-op. Calls
// for the same project are serialized across processes.
func (s *Syncer) Sync(ctx context.Context, project, token string) (*Result, error) {
	fail := func(op, path string, err error) (*Result, error) {
		return nil, &SyncError{Project: project, Op: op, Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Join(s.DestDir, stateDir), 0o755); err != nil {
		return fail("create", filepath.Join(s.DestDir, stateDir), err)
	}
	unlock, err := lockFile(filepath.Join(s.DestDir, stateDir, project+".lock"))
	if err != nil {
		return fail("lock", "", err)
	}
	defer unlock()

	statePath := filepath.Join(s.DestDir, stateDir, project+".json")
	st, err := loadState(statePath)
	if err != nil {
		log.Warnf("sync %s: discarding unreadable state %s: %v", project, statePath, err)
		st = &state{}
	}
	if token != "" && st.Token == token {
		log.Debugf("sync %s: already synced for %s", project, token)
		return &Result{Skipped: true}, nil
	}

	src := filepath.Join(s.SrcDir, project)
	if fi, err := os.Stat(src); err != nil {
		return fail("read", src, err)
	} else if !fi.IsDir() {
		return fail("read", src, errors.New("not a directory"))
	}

	listed, err := s.VCS.WorkingFiles(ctx, src)
	if err != nil {
		return fail("list", src, err)
	}
	deleted, err := s.VCS.Deleted(ctx, src)
	if err != nil {
		return fail("list", src, err)
	}
	files, err := expand(src, listed)
	if err != nil {
		return fail("list", src, err)
	}

	m := &mirror{src: src, dst: s.MirrorDir(project)}
	if err := os.MkdirAll(m.dst, 0o755); err != nil {
		return fail("create", m.dst, err)
	}

	res := &Result{}
	listedSet := make(map[string]bool, len(files))
	for _, f := range files {
		listedSet[f] = true
	}

	// Drop what was synced before but is gone now, and what the working tree
	// deleted, before copying: a file may have turned into a directory.
	var gone []string
	for f := range st.Files {
		if !listedSet[f] {
			gone = append(gone, f)
		}
	}
	for _, f := range deleted {
		if !listedSet[f] && !slices.Contains(gone, f) {
			gone = append(gone, f)
		}
	}
	slices.Sort(gone)
	for _, f := range gone {
		if err := m.drop(res, project, f); err != nil {
			return nil, err
		}
	}

	next := &state{Token: token, Files: make(map[string]*entry, len(files))}
	for _, f := range files {
		e, copied, err := m.update(f, st.Files[f])
		if err != nil {
			return fail("copy", f, err)
		}
		if e == nil {
			// no longer a file we can mirror
			if st.Files[f] != nil {
				if err := m.drop(res, project, f); err != nil {
					return nil, err
				}
			}
			continue
		}
		next.Files[f] = e
		if copied {
			log.Debugf("sync %s: copy %s", project, f)
			res.Copied = append(res.Copied, f)
		} else {
			res.Unchanged++
		}
	}

	if err := next.save(statePath); err != nil {
		return fail("write", statePath, err)
	}
	return res, nil
}

func (m *mirror) drop(res *Result, project, f string) error {
	removed, err := m.remove(f)
	if err != nil {
		return &SyncError{Project: project, Op: "remove", Path: f, Err: err}
	}
	if removed {
		log.Debugf("sync %s: remove %s", project, f)
		res.Removed = append(res.Removed, f)
	}
	return nil
}

// expand replaces directories in a listing, i.e. submodules, by the files
// below them. The result is sorted.
func expand(root string, listed []string) ([]string, error) {
	var ret []string
	for _, f := range listed {
		p := filepath.Join(root, filepath.FromSlash(f))
		fi, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			// deleted while we were looking
			continue
		}
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			ret = append(ret, filepath.ToSlash(f))
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Name() == ".git" {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			ret = append(ret, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(ret)
	return slices.Compact(ret), nil
}
