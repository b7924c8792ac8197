package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesDailyFile(t *testing.T) {
	root := t.TempDir()

	log, err := New(root, "debug", false)
	require.NoError(t, err)
	log.Infow("hello", "k", "v")
	_ = log.Sync()

	path := filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.Contains(t, string(b), `"level":"info"`)
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	log, err := New(t.TempDir(), "shouting", false)
	require.NoError(t, err)
	assert.False(t, log.Desugar().Core().Enabled(-1)) // debug
	assert.True(t, log.Desugar().Core().Enabled(0))   // info
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
