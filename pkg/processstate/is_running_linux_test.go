package processstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutablePath(t *testing.T) {
	expected, err := os.Executable()
	require.NoError(t, err)
	expected, err = filepath.EvalSymlinks(expected)
	require.NoError(t, err)

	actual, err := ExecutablePath(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, expected, actual)

	_, err = ExecutablePath(0)
	assert.Error(t, err)
}
