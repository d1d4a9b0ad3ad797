package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footage-browser/internal/kfcache"
	"footage-browser/internal/models"
)

func testRecords() []models.SegmentRecord {
	return []models.SegmentRecord{
		{Type: 1, StartTime: 100, EndTime: 200, StartOffset: 0, EndOffset: 5000, Unit: models.UnitBytes},
		{Type: 1, StartTime: 300, EndTime: 400, StartOffset: 5000, EndOffset: 9000, Unit: models.UnitBytes},
	}
}

func TestIndexOffsetsStrategy(t *testing.T) {
	cam := models.Camera{ID: 2, Name: "cam2", Path: "/data/cam2"}
	s := &indexOffsetsStrategy{}

	entries := s.DeriveSegments(context.Background(), cam, 7, testRecords())
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].CameraID)
	assert.Equal(t, 7, entries[0].File)
	assert.Equal(t, 0, entries[0].SegmentIndex)
	assert.Equal(t, 1, entries[1].SegmentIndex)
	assert.Equal(t, uint64(9000), entries[1].EndOffset)

	assert.Empty(t, s.DeriveSegments(context.Background(), cam, 7, nil))
}

func TestWholeFileStrategy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hiv00007.mp4"), make([]byte, 7777), 0644))
	cam := models.Camera{ID: 0, Path: dir}
	s := &wholeFileStrategy{}

	entries := s.DeriveSegments(context.Background(), cam, 7, testRecords())
	require.Len(t, entries, 1)
	// 时间取记录并集, 偏移覆盖整个媒体文件
	assert.Equal(t, int64(100), entries[0].StartTime)
	assert.Equal(t, int64(400), entries[0].EndTime)
	assert.Equal(t, uint64(0), entries[0].StartOffset)
	assert.Equal(t, uint64(7777), entries[0].EndOffset)
	assert.Equal(t, models.UnitBytes, entries[0].Unit)

	// 媒体文件缺失时无段落
	assert.Empty(t, s.DeriveSegments(context.Background(), cam, 8, testRecords()))
}

func TestKeyframeStrategyWithoutSampleTable(t *testing.T) {
	kfcache.SetCacheDir(t.TempDir())
	dir := t.TempDir()
	// 无效 MP4: 样本表解析失败, 退回设备上报的偏移
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hiv00000.mp4"), []byte("not an mp4"), 0644))
	cam := models.Camera{ID: 0, Path: dir}
	s := &keyframeStrategy{}

	entries := s.DeriveSegments(context.Background(), cam, 0, testRecords())
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Keyframes)
	assert.Equal(t, uint64(5000), entries[1].StartOffset)
}

// stubProber 固定返回的探测器替身
type stubProber struct {
	duration float64
	scenes   []float64
	err      error
}

func (s *stubProber) Duration(_ context.Context, _ string) (float64, error) {
	return s.duration, s.err
}

func (s *stubProber) SceneChanges(_ context.Context, _ string, _ float64) ([]float64, error) {
	return s.scenes, s.err
}

func TestFFprobeStrategy(t *testing.T) {
	cam := models.Camera{ID: 0, Path: "/data/cam0"}
	s := &ffprobeStrategy{prober: &stubProber{duration: 300.9}}

	entries := s.DeriveSegments(context.Background(), cam, 3, testRecords())
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), entries[0].StartTime)
	assert.Equal(t, int64(400), entries[0].EndTime)
	assert.Equal(t, uint64(0), entries[0].StartOffset)
	// 秒单位下偏移就是整秒
	assert.Equal(t, uint64(300), entries[0].EndOffset)
	assert.Equal(t, models.UnitSeconds, entries[0].Unit)
}

func TestFFprobeStrategyFallsBackOnError(t *testing.T) {
	cam := models.Camera{ID: 0, Path: "/data/cam0"}
	s := &ffprobeStrategy{prober: &stubProber{err: context.DeadlineExceeded}}

	entries := s.DeriveSegments(context.Background(), cam, 3, testRecords())
	require.Len(t, entries, 2)
	// 回退到设备偏移: 字节单位原样保留
	assert.Equal(t, uint64(5000), entries[0].EndOffset)
	assert.Equal(t, models.UnitBytes, entries[0].Unit)
}

func TestSceneStrategy(t *testing.T) {
	cam := models.Camera{ID: 1, Path: "/data/cam1"}
	// 记录并集 100..400 (300 秒); 范围外与乱序的切分点丢弃
	s := &sceneStrategy{prober: &stubProber{scenes: []float64{10.5, 200, 150, 9999}}, threshold: 0.4}

	entries := s.DeriveSegments(context.Background(), cam, 0, testRecords())
	require.Len(t, entries, 3)

	assert.Equal(t, int64(100), entries[0].StartTime)
	assert.Equal(t, int64(110), entries[0].EndTime)
	assert.Equal(t, uint64(0), entries[0].StartOffset)
	assert.Equal(t, uint64(10), entries[0].EndOffset)

	assert.Equal(t, int64(110), entries[1].StartTime)
	assert.Equal(t, int64(300), entries[1].EndTime)
	assert.Equal(t, uint64(200), entries[1].EndOffset)

	assert.Equal(t, int64(300), entries[2].StartTime)
	assert.Equal(t, int64(400), entries[2].EndTime)
	assert.Equal(t, uint64(300), entries[2].EndOffset)

	for _, e := range entries {
		assert.Equal(t, models.UnitSeconds, e.Unit)
	}
}

func TestSceneStrategyNoScenes(t *testing.T) {
	cam := models.Camera{ID: 0, Path: "/data/cam0"}
	s := &sceneStrategy{prober: &stubProber{}, threshold: 0.4}

	// 无切分点: 单段覆盖整个时间范围
	entries := s.DeriveSegments(context.Background(), cam, 0, testRecords())
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), entries[0].StartTime)
	assert.Equal(t, int64(400), entries[0].EndTime)
	assert.Equal(t, uint64(300), entries[0].EndOffset)
	assert.Equal(t, models.UnitSeconds, entries[0].Unit)
}

func TestSceneStrategyFallsBackOnError(t *testing.T) {
	cam := models.Camera{ID: 0, Path: "/data/cam0"}
	s := &sceneStrategy{prober: &stubProber{err: context.DeadlineExceeded}, threshold: 0.4}

	entries := s.DeriveSegments(context.Background(), cam, 0, testRecords())
	require.Len(t, entries, 2)
	assert.Equal(t, models.UnitBytes, entries[0].Unit)
}

func TestSnapToKeyframe(t *testing.T) {
	keyframes := []models.KeyframeOffset{
		{Sample: 1, Offset: 1000},
		{Sample: 3, Offset: 2000},
		{Sample: 7, Offset: 9000},
	}

	// 对齐到不晚于偏移的最近关键帧
	assert.Equal(t, uint64(2000), snapToKeyframe(keyframes, 2500))
	assert.Equal(t, uint64(2000), snapToKeyframe(keyframes, 2000))
	assert.Equal(t, uint64(9000), snapToKeyframe(keyframes, 100000))
	// 首个关键帧之前: 保持原值
	assert.Equal(t, uint64(500), snapToKeyframe(keyframes, 500))
	assert.Equal(t, uint64(500), snapToKeyframe(nil, 500))
}
