package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Client defines the git queries exgate needs to stamp a run with the
// generator checkout it exercised.
type Client interface {
	RepoRoot(path string) (string, error)
	LastCommitHash(path string) (string, error)
	IsDirty(path string) (bool, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) LastCommitHash(path string) (string, error) {
	return gitCmd(path, "log", "-1", "--format=%h")
}

func (c *RealClient) IsDirty(path string) (bool, error) {
	out, err := gitCmd(path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Revision describes the state of a checkout.
type Revision struct {
	Hash  string
	Dirty bool
}

// String renders the revision as "abc1234" or "abc1234-dirty".
func (r Revision) String() string {
	if r.Hash == "" {
		return ""
	}
	if r.Dirty {
		return r.Hash + "-dirty"
	}
	return r.Hash
}

// Stamp returns the revision of the repo containing path. Paths outside a
// repository yield a zero Revision rather than an error.
func Stamp(c Client, path string) Revision {
	if _, err := c.RepoRoot(path); err != nil {
		return Revision{}
	}
	hash, err := c.LastCommitHash(path)
	if err != nil {
		return Revision{}
	}
	dirty, _ := c.IsDirty(path)
	return Revision{Hash: hash, Dirty: dirty}
}
