package pid

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/soilctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	require.NoError(t, Write())

	b, err := os.ReadFile(Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))

	// Writing again from the same process is not a conflict.
	require.NoError(t, Write())

	require.NoError(t, Remove())
	_, err = os.Stat(Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, Remove())
}

func TestWriteRefusesLiveProcess(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	// PID 1 always exists.
	require.NoError(t, os.WriteFile(Path(), []byte("1\n"), 0o600))

	err := Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	// Someone else's file is left alone.
	require.NoError(t, Remove())
	_, err = os.Stat(Path())
	assert.NoError(t, err)
}

func TestWriteReplacesStaleFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	require.NoError(t, os.WriteFile(Path(), []byte("not a pid"), 0o600))
	require.NoError(t, Write())

	owner, err := read(Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), owner)
}
