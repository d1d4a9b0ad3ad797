package kfcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footage-browser/internal/models"
)

// writeMedia 缓存键来自媒体文件的 stat 信息, 测试前需要真实文件
func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media payload"), 0644))
	return path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	SetCacheDir(t.TempDir())
	media := writeMedia(t, t.TempDir(), "hiv00001.mp4")

	records := []models.KeyframeOffset{
		{Sample: 1, Offset: 1000},
		{Sample: 3, Offset: 2000},
		{Sample: 90, Offset: 1 << 33},
	}

	assert.False(t, Exists(media))
	require.NoError(t, Save(media, records))
	assert.True(t, Exists(media))

	cache, err := Load(media)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, 3, cache.Count())
	require.Len(t, cache.Records, 3)
	assert.Equal(t, records, cache.Records)
}

func TestSaveEmptyIsNoop(t *testing.T) {
	SetCacheDir(t.TempDir())
	media := writeMedia(t, t.TempDir(), "hiv00002.mp4")

	require.NoError(t, Save(media, nil))
	assert.False(t, Exists(media))
}

func TestLoadRejectsBadCache(t *testing.T) {
	dir := t.TempDir()
	SetCacheDir(dir)
	media := writeMedia(t, t.TempDir(), "hiv00003.mp4")

	require.NoError(t, Save(media, []models.KeyframeOffset{{Sample: 1, Offset: 100}}))

	path := cachePath(media)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// 魔数损坏
	bad := append([]byte{}, data...)
	copy(bad[0:4], "XXXX")
	require.NoError(t, os.WriteFile(path, bad, 0644))
	_, err = Load(media)
	assert.ErrorContains(t, err, "magic")

	// 头部声明的记录数超过文件实际长度
	bad = append([]byte{}, data...)
	bad[8] = 200
	require.NoError(t, os.WriteFile(path, bad, 0644))
	_, err = Load(media)
	assert.ErrorContains(t, err, "truncated")

	// 不足头部长度
	require.NoError(t, os.WriteFile(path, data[:10], 0644))
	_, err = Load(media)
	assert.Error(t, err)
}

func TestCacheInvalidatedByMtime(t *testing.T) {
	SetCacheDir(t.TempDir())
	dir := t.TempDir()
	media := writeMedia(t, dir, "hiv00004.mp4")

	require.NoError(t, Save(media, []models.KeyframeOffset{{Sample: 1, Offset: 100}}))
	require.True(t, Exists(media))

	// 内容变化 (大小不同) 生成新的缓存键, 旧缓存不再命中
	require.NoError(t, os.WriteFile(media, []byte("longer media payload"), 0644))
	assert.False(t, Exists(media))
}

func TestParseKeyframesCached(t *testing.T) {
	SetCacheDir(t.TempDir())
	media := writeMedia(t, t.TempDir(), "hiv00005.mp4")

	// 预置缓存后, 解析直接命中而不触碰 MP4 内容
	want := []models.KeyframeOffset{{Sample: 5, Offset: 4096}}
	require.NoError(t, Save(media, want))

	got, err := ParseKeyframes(media)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseKeyframesNoSampleTable(t *testing.T) {
	SetCacheDir(t.TempDir())
	media := writeMedia(t, t.TempDir(), "hiv00006.mp4")

	// 无缓存且文件里没有样本表: 空结果, 不产生缓存
	got, err := ParseKeyframes(media)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, Exists(media))
}
