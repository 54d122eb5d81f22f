package git

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountModified(t *testing.T) {
	assert.Equal(t, 0, countModified(nil))
	assert.Equal(t, 2, countModified([]byte(" M include/defs.h\nM  sys/types.h\n\n")))
}

func TestRevision_String(t *testing.T) {
	r := Revision{Commit: "0123456789abcdef0123"}
	assert.Equal(t, "0123456789ab", r.String())
	r.Modified = 3
	assert.Equal(t, "0123456789ab+3", r.String())
}

func TestDescribe(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	ctx := context.Background()

	t.Run("outside a work tree", func(t *testing.T) {
		_, err := Describe(ctx, root)
		assert.Error(t, err)
	})

	t.Run("fresh commit", func(t *testing.T) {
		for _, args := range [][]string{
			{"init", "-q"},
			{"-c", "user.name=t", "-c", "user.email=t@example.com", "commit", "-q", "--allow-empty", "-m", "init"},
		} {
			cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
			out, err := cmd.CombinedOutput()
			require.NoError(t, err, string(out))
		}
		rev, err := Describe(ctx, root)
		require.NoError(t, err)
		assert.Len(t, rev.Commit, 40)
		assert.Zero(t, rev.Modified)
	})
}
