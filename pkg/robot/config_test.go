package robot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Port: "/dev/ttyACM0", Step: 20}.WithDefaults()

	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 20, cfg.Step)
	assert.Equal(t, DefaultHz, cfg.Hz)
	assert.Equal(t, DefaultSpeed, cfg.Speed)
	assert.Equal(t, DefaultAcceleration, cfg.Acceleration)
	assert.Equal(t, DefaultLimitsFile, cfg.LimitsFile)
	assert.Equal(t, 20*time.Millisecond, cfg.CommandInterval())
}

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "so101.json")
	cfg := &Config{Port: "/dev/ttyUSB1", BaudRate: 500000, Hz: 50}

	require.NoError(t, cfg.SaveTo(path))
	got, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadConfigFrom_Missing(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, IsNotExist(err))
}
