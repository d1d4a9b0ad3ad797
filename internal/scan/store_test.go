package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footage-browser/internal/models"
)

func TestStoreCatalogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &Store{CacheFile: filepath.Join(dir, "cache.json")}

	catalog := &models.Catalog{
		Cameras: []models.Camera{{ID: 0, Name: "datadir0"}},
		Segments: map[int][]models.CatalogEntry{
			0: {{CameraID: 0, File: 1, StartTime: 100, EndTime: 200, EndOffset: 5000, Unit: models.UnitBytes}},
		},
		Reasons:   map[int]models.ReasonCode{0: models.ReasonOK},
		UpdatedAt: 1700000000,
	}
	require.NoError(t, s.SaveCatalog(catalog))
	assert.Greater(t, s.CacheSize(), int64(0))

	// 原子替换后不残留临时文件
	_, err := os.Stat(s.CacheFile + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := s.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, catalog.Cameras, loaded.Cameras)
	assert.Equal(t, catalog.Segments, loaded.Segments)
	assert.Equal(t, models.ReasonOK, loaded.Reasons[0])
}

func TestStoreLoadMissingCatalog(t *testing.T) {
	s := &Store{CacheFile: filepath.Join(t.TempDir(), "cache.json")}

	c, err := s.LoadCatalog()
	require.NoError(t, err)
	assert.Empty(t, c.Cameras)
	assert.NotNil(t, c.Segments)
	assert.NotNil(t, c.Reasons)
	assert.Equal(t, int64(0), s.CacheSize())
}

func TestStoreProgressLifecycle(t *testing.T) {
	dir := t.TempDir()
	s := &Store{ProgressFile: filepath.Join(dir, "cache.json.progress")}

	require.NoError(t, s.WriteProgress(models.ScanProgress{
		CameraIndex: 1, TotalCameras: 4, FilesDone: 3, TotalFiles: 10,
	}))
	_, err := os.Stat(s.ProgressFile)
	require.NoError(t, err)

	// 扫描完成后进度文档删除
	s.ClearProgress()
	_, err = os.Stat(s.ProgressFile)
	assert.True(t, os.IsNotExist(err))
}
