package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotRepository is returned for roots outside any git work tree.
var ErrNotRepository = errors.New("not a git work tree")

// Revision identifies the checkout a source tree was read from.
type Revision struct {
	Commit   string `json:"commit"`
	Modified int    `json:"modified,omitempty"` // tracked files with local changes
}

func (r Revision) String() string {
	short := r.Commit
	if len(short) > 12 {
		short = short[:12]
	}
	if r.Modified > 0 {
		return fmt.Sprintf("%s+%d", short, r.Modified)
	}
	return short
}

// Describe reports HEAD and the number of locally modified tracked files of
// the work tree containing root.
func Describe(ctx context.Context, root string) (Revision, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return Revision{}, err
	}
	head, err := run(ctx, root, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return Revision{}, err
	}
	status, err := run(ctx, root, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return Revision{}, err
	}
	return Revision{
		Commit:   strings.TrimSpace(string(head)),
		Modified: countModified(status),
	}, nil
}

func run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if strings.Contains(stderr.String(), "not a git repository") {
			return nil, fmt.Errorf("%s: %w", dir, ErrNotRepository)
		}
		return nil, fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return out, nil
}

// countModified counts porcelain status entries.
func countModified(status []byte) int {
	n := 0
	scanner := bufio.NewScanner(bytes.NewReader(status))
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) > 0 {
			n++
		}
	}
	return n
}
