package workdir

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomName(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]{6}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, pattern, RandomName())
	}
}

func TestNewLayout_DistinctNames(t *testing.T) {
	names := []string{"aaaaaa", "aaaaaa", "bbbbbb", "cccccc", "bbbbbb", "dddddd"}
	i := 0
	namer := func() string {
		name := names[i]
		i++
		return name
	}

	layout := NewLayout("/srv/keeper", namer)

	assert.Equal(t, "/srv/keeper/aaaaaa", layout.AgentV0Binary)
	assert.Equal(t, "/srv/keeper/bbbbbb", layout.AgentV1Binary)
	assert.Equal(t, "/srv/keeper/cccccc", layout.ProxyBinary)
	assert.Equal(t, "/srv/keeper/dddddd", layout.TunnelBinary)
	assert.Equal(t, "/srv/keeper/boot.log", layout.Path(BootLogFile))
}

func TestLayout_PrepareAndWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tmp")
	layout := NewLayout(dir, nil)

	require.NoError(t, layout.Prepare())
	require.NoError(t, layout.Prepare())
	assert.DirExists(t, dir)

	require.NoError(t, layout.WriteFile(ProxyConfigFile, []byte("{}")))
	data, err := os.ReadFile(layout.Path(ProxyConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestLayout_PrepareEmpty(t *testing.T) {
	assert.Error(t, Layout{}.Prepare())
}
