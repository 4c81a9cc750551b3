// Package vcs queries the working tree of a git checkout.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// VCS defines the working tree queries the source mirror needs.
type VCS interface {
	// WorkingFiles lists the files of the working tree at dir, relative to
	// dir: tracked files that still exist, plus untracked files that are not
	// ignored. A submodule is listed as its directory. Works on a repository
	// without commits.
	WorkingFiles(ctx context.Context, dir string) ([]string, error)

	// Deleted lists the tracked files that are missing from the working tree.
	Deleted(ctx context.Context, dir string) ([]string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) WorkingFiles(ctx context.Context, dir string) ([]string, error) {
	output, err := g.output(ctx, dir, "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	deleted, err := g.Deleted(ctx, dir)
	if err != nil {
		return nil, err
	}

	files := splitZ(output)
	slices.Sort(files)
	files = slices.Compact(files)
	if len(deleted) > 0 {
		files = slices.DeleteFunc(files, func(f string) bool {
			_, found := slices.BinarySearch(deleted, f)
			return found
		})
	}
	return files, nil
}

func (g *gitVCS) Deleted(ctx context.Context, dir string) ([]string, error) {
	output, err := g.output(ctx, dir, "ls-files", "-z", "--deleted")
	if err != nil {
		return nil, fmt.Errorf("list deleted files: %w", err)
	}
	files := splitZ(output)
	slices.Sort(files)
	return slices.Compact(files), nil
}

// splitZ splits NUL terminated output. Paths are not quoted with -z.
func splitZ(output string) []string {
	output = strings.TrimSuffix(output, "\x00")
	if output == "" {
		return nil
	}
	return strings.Split(output, "\x00")
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
