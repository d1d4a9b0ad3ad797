package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footage-browser/internal/models"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Storage.Datadirs = []string{"/mnt/dvr"}
	cfg.Storage.CacheFile = "/var/cache/footage/cache.json"
	cfg.Parser.OffsetUnit = models.UnitBytes
	return cfg
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9000
storage:
  datadirs:
    - /mnt/dvr/sd0
    - /mnt/nas
  cache_file: /var/cache/footage/cache.json
parser:
  interval: 60
  offset_unit: seconds
  record_mode: all
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, []string{"/mnt/dvr/sd0", "/mnt/nas"}, cfg.Storage.Datadirs)
	assert.Equal(t, models.UnitSeconds, cfg.Parser.OffsetUnit)
	assert.Equal(t, models.ModeAll, cfg.Parser.RecordMode)
	assert.Equal(t, time.Minute, cfg.ScanInterval())

	// 未设置的项保持默认
	assert.Equal(t, models.LayoutAuto, cfg.Parser.RecordLayout)
	assert.Equal(t, uint64(1024), cfg.Parser.MinSegmentBytes)
	assert.Equal(t, 0.4, cfg.Parser.SceneThreshold)
	assert.Equal(t, 7, cfg.Display.DefaultDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateOffsetUnitRequired(t *testing.T) {
	// 偏移单位不自描述, 缺省必须在配置层失败
	cfg := validConfig()
	cfg.Parser.OffsetUnit = ""
	assert.ErrorContains(t, cfg.Validate(), "offset_unit")

	cfg.Parser.OffsetUnit = "frames"
	assert.ErrorContains(t, cfg.Validate(), "offset_unit")

	cfg.Parser.OffsetUnit = models.UnitSeconds
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvalidEnums(t *testing.T) {
	cfg := validConfig()
	cfg.Parser.RecordLayout = "v3"
	assert.ErrorContains(t, cfg.Validate(), "record_layout")

	cfg = validConfig()
	cfg.Parser.RecordMode = "last"
	assert.ErrorContains(t, cfg.Validate(), "record_mode")

	cfg = validConfig()
	cfg.Parser.Strategy = "magic"
	assert.ErrorContains(t, cfg.Validate(), "strategy")

	cfg = validConfig()
	cfg.Parser.Strategy = StrategySceneDetection
	assert.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Parser.SceneThreshold = 1.5
	assert.ErrorContains(t, cfg.Validate(), "scene_threshold")

	cfg = validConfig()
	cfg.Storage.Datadirs = nil
	assert.ErrorContains(t, cfg.Validate(), "datadirs")
}

func TestValidateDerivesAuxPaths(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cfg.Storage.CacheFile+".progress", cfg.Storage.ProgressFile)
	assert.Equal(t, cfg.Storage.CacheFile+".mtime", cfg.Storage.MtimeFile)

	// 显式配置不被覆盖
	cfg = validConfig()
	cfg.Storage.ProgressFile = "/tmp/p.json"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tmp/p.json", cfg.Storage.ProgressFile)
}
