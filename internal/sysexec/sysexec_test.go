package sysexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	runner := ExecRunner{}

	t.Run("Captures stdout", func(t *testing.T) {
		res, err := runner.Run(context.Background(), "sh", "-c", "echo hello")
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "hello\n", res.Stdout)
	})

	t.Run("Captures stderr and exit code", func(t *testing.T) {
		res, err := runner.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
		require.NoError(t, err, "non-zero exit is not a runner error")
		assert.Equal(t, 3, res.ExitCode)
		assert.Equal(t, "oops\n", res.Stderr)
	})

	t.Run("Missing binary", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "definitely-not-a-binary-xyz")
		assert.Error(t, err)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Run(ctx, "sh", "-c", "sleep 10")
		assert.Error(t, err)
	})
}
