package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/crateclone/crateclone/pkg/store"
)

// GitSource serves every package found in a git repository at one commit.
// Checkouts are cached in Store keyed by host, repository path and commit.
type GitSource struct {
	URL   string
	Ref   string // branch, tag or commit; empty means the remote HEAD
	Store store.Store

	commit   string
	packages packageList
}

var _ Source = &GitSource{}

func (g *GitSource) ID() string {
	if g.commit != "" {
		return fmt.Sprintf("git %s#%s", g.URL, g.commit[:min(len(g.commit), 8)])
	}
	return "git " + g.URL
}

// Update resolves the ref to a commit, checks the commit out into the store
// unless it is already there, and indexes the packages in the checkout.
func (g *GitSource) Update(ctx context.Context) error {
	// 1. Resolve the ref to a commit hash.
	commit, err := g.resolveRef(ctx)
	if err != nil {
		return fmt.Errorf("resolving ref %q: %w", g.ref(), err)
	}

	// 2. Check if this repo@commit is already checked out.
	segs, err := g.checkoutSegments(commit)
	if err != nil {
		return err
	}

	ready, err := g.Store.Exists(append(segs, store.ReadyMarker)...)
	if err != nil {
		return fmt.Errorf("checking cache: %w", err)
	}

	if !ready {
		// 3. Clear any interrupted checkout and create its parent.
		g.Store.Remove(segs...)
		if err := g.Store.EnsureDir(segs[:len(segs)-1]...); err != nil {
			return fmt.Errorf("creating checkout directory: %w", err)
		}

		// 4. Clone, drop the git metadata and mark the checkout complete.
		dest := g.Store.Path(segs...)
		if err := g.clone(ctx, dest, commit); err != nil {
			g.Store.Remove(segs...)
			return fmt.Errorf("cloning %s: %w", g.URL, err)
		}
		g.Store.Remove(append(segs, ".git")...)
		if err := g.Store.WriteFile(readyMarkerContent, append(segs, store.ReadyMarker)...); err != nil {
			return fmt.Errorf("marking checkout complete: %w", err)
		}
	}

	// 5. Index every package in the checkout.
	pkgs, err := discoverPackages(g.Store.Path(segs...))
	if err != nil {
		return fmt.Errorf("reading packages in %s: %w", g.URL, err)
	}

	g.commit = commit
	g.packages = pkgs
	return nil
}

func (g *GitSource) Query(ctx context.Context, q Query) ([]Summary, error) {
	return g.packages.query(q), nil
}

func (g *GitSource) EnumerateAll(ctx context.Context) ([]*Package, error) {
	return g.packages, nil
}

func (g *GitSource) Download(ctx context.Context, id PackageID) (*Package, error) {
	return g.packages.find(id)
}

func (g *GitSource) ref() string {
	if g.Ref == "" {
		return "HEAD"
	}
	return g.Ref
}

// resolveRef resolves the ref to a full 40-char commit hash.
// Full commit hashes are returned as-is. Short commit hashes are resolved
// via git fetch + rev-parse. Branch and tag names are resolved via ls-remote.
func (g *GitSource) resolveRef(ctx context.Context) (string, error) {
	ref := g.ref()
	if isCommitHash(ref) {
		return strings.ToLower(ref), nil
	}

	if isShortCommitHash(ref) {
		return g.resolveShortHash(ctx)
	}

	cmd := exec.CommandContext(ctx, "git", "ls-remote", g.URL, ref, ref+"^{}")
	out, err := cmd.Output()
	if err != nil {
		return "", execError(err)
	}

	var commit string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		commit = fields[0]
		// For annotated tags, prefer the dereferenced entry (^{})
		// which points to the underlying commit.
		if strings.HasSuffix(fields[1], "^{}") {
			return fields[0], nil
		}
	}

	if commit == "" {
		return "", fmt.Errorf("ref %q not found in %s", ref, g.URL)
	}
	return commit, nil
}

// resolveShortHash expands a short commit hash to the full 40-char hash
// by listing all refs and prefix-matching their commit hashes.
func (g *GitSource) resolveShortHash(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-remote", g.URL)
	out, err := cmd.Output()
	if err != nil {
		return "", execError(err)
	}

	prefix := strings.ToLower(g.Ref)
	var match string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		hash := strings.ToLower(fields[0])
		if !strings.HasPrefix(hash, prefix) {
			continue
		}
		if match != "" && match != hash {
			return "", fmt.Errorf("short hash %q is ambiguous in %s", g.Ref, g.URL)
		}
		match = hash
	}

	if match == "" {
		return "", fmt.Errorf("short hash %q not found in %s", g.Ref, g.URL)
	}
	return match, nil
}

// clone performs a shallow clone of the repository into dest.
// Uses --branch for branch/tag refs, a plain clone for HEAD, and init+fetch
// for commit hashes. commit is the full resolved hash used for the
// fetch-by-SHA path.
func (g *GitSource) clone(ctx context.Context, dest string, commit string) error {
	if isHexString(g.Ref) {
		return g.cloneCommit(ctx, dest, commit)
	}
	return g.cloneBranch(ctx, dest)
}

func (g *GitSource) cloneBranch(ctx context.Context, dest string) error {
	args := []string{"clone", "--depth", "1"}
	if g.Ref != "" {
		args = append(args, "--branch", g.Ref)
	}
	args = append(args, g.URL, dest)
	cmd := exec.CommandContext(ctx, "git", args...)
	if _, err := cmd.Output(); err != nil {
		return execError(err)
	}
	return nil
}

// cloneCommit fetches a single commit by SHA. Requires the server to support
// uploadpack.allowReachableSHA1InWant (GitHub, GitLab, and Bitbucket do).
func (g *GitSource) cloneCommit(ctx context.Context, dest string, commit string) error {
	for _, args := range [][]string{
		{"init", dest},
		{"-C", dest, "remote", "add", "origin", g.URL},
		{"-C", dest, "fetch", "--depth", "1", "origin", commit},
		{"-C", dest, "checkout", "FETCH_HEAD"},
	} {
		cmd := exec.CommandContext(ctx, "git", args...)
		if _, err := cmd.Output(); err != nil {
			return execError(err)
		}
	}
	return nil
}

// checkoutSegments returns the store path segments for a checkout of this
// repo at a given commit.
// e.g. "https://github.com/serde-rs/serde.git" at commit "abc123..." →
//
//	["git", "checkouts", "github.com", "serde-rs", "serde", "abc123..."]
func (g *GitSource) checkoutSegments(commit string) ([]string, error) {
	host, repoPath, err := parseGitURL(g.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing git URL: %w", err)
	}
	if host == "" {
		host = "local"
	}
	segs := []string{"git", "checkouts", host}
	segs = append(segs, strings.Split(repoPath, "/")...)
	segs = append(segs, commit)
	return segs, nil
}

// parseGitURL extracts the host and repository path from a git URL.
// Supports HTTPS URLs and SSH shorthand (git@host:owner/repo.git).
func parseGitURL(rawURL string) (host, repoPath string, err error) {
	// SSH shorthand: git@github.com:owner/repo.git
	if idx := strings.Index(rawURL, ":"); idx > 0 && !strings.Contains(rawURL[:idx], "/") && !strings.Contains(rawURL, "://") {
		host = rawURL[:idx]
		if at := strings.Index(host, "@"); at >= 0 {
			host = host[at+1:]
		}
		repoPath = strings.TrimSuffix(rawURL[idx+1:], ".git")
		return host, repoPath, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	repoPath = strings.TrimPrefix(u.Path, "/")
	repoPath = strings.TrimSuffix(repoPath, ".git")
	return u.Host, repoPath, nil
}

// isCommitHash reports whether s is a full 40-character hex SHA-1 hash.
func isCommitHash(s string) bool {
	return len(s) == 40 && isHexString(s)
}

// isShortCommitHash reports whether s looks like an abbreviated commit hash (7-39 hex chars).
func isShortCommitHash(s string) bool {
	return len(s) >= 7 && len(s) < 40 && isHexString(s)
}

// isHexString reports whether s is non-empty and contains only hexadecimal characters.
func isHexString(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func execError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
