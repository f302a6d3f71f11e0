package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type recorder struct {
	lines []string
}

func (r *recorder) fn(level string) LogFunc {
	return func(format string, args ...interface{}) {
		r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
	}
}

func TestLogger_PrefixAndLevels(t *testing.T) {
	rec := &recorder{}
	logger := NewLogger("module: test , ", LogFuncs{
		Infof:  rec.fn("I"),
		Errorf: rec.fn("E"),
	})

	logger.Infof("started %s", "proxy")
	logger.Debugf("dropped")
	logger.Warnf("dropped too")
	logger.Errorf("failed: %d", 3)
	logger.LogLevelf(LogLevelInfo, "via level")

	assert.Equal(t, []string{
		"I module: test , started proxy",
		"E module: test , failed: 3",
		"I module: test , via level",
	}, rec.lines)
}

func TestWithPrefix_Stacks(t *testing.T) {
	rec := &recorder{}
	base := NewLogger("root , ", LogFuncs{Warnf: rec.fn("W")})

	WithPrefix(base, "child , ").Warnf("x")

	require.Len(t, rec.lines, 1)
	assert.Equal(t, "W root , child , x", rec.lines[0])
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	level, err = ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	logger, flush, err := NewBackend(BackendConfig{Backend: BackendZap, Level: "error", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	flush()

	_, _, err = NewBackend(BackendConfig{Backend: "syslog"})
	assert.Error(t, err)
}
