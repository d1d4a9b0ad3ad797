package scan

import (
	"context"
	"os"

	"footage-browser/internal/config"
	"footage-browser/internal/hikidx"
	"footage-browser/internal/kfcache"
	"footage-browser/internal/logging"
	"footage-browser/internal/models"
	"footage-browser/internal/probe"
)

// Strategy 段落边界推导策略
//
// 历史上各固件代用过不同的边界来源 (设备偏移/整文件/ffprobe 时长/
// 关键帧), 统一为可配置选择的具名策略, 而不是分叉的解析器构建
type Strategy interface {
	Name() string

	// DeriveSegments 把一个文件的有效记录转换为目录条目
	DeriveSegments(ctx context.Context, cam models.Camera, fileNum int, records []models.SegmentRecord) []models.CatalogEntry
}

// mediaProber 策略需要的外部探测能力 (probe.Prober 的子集)
type mediaProber interface {
	Duration(ctx context.Context, path string) (float64, error)
	SceneChanges(ctx context.Context, path string, threshold float64) ([]float64, error)
}

// NewStrategy 按配置名创建策略
func NewStrategy(cfg *config.Config, prober *probe.Prober) Strategy {
	switch cfg.Parser.Strategy {
	case config.StrategyWholeFile:
		return &wholeFileStrategy{}
	case config.StrategyFFprobeDuration:
		return &ffprobeStrategy{prober: prober}
	case config.StrategySceneDetection:
		return &sceneStrategy{prober: prober, threshold: cfg.Parser.SceneThreshold}
	case config.StrategyKeyframe:
		return &keyframeStrategy{}
	default:
		return &indexOffsetsStrategy{}
	}
}

func baseEntry(cam models.Camera, fileNum, segIdx int, rec *models.SegmentRecord) models.CatalogEntry {
	return models.CatalogEntry{
		CameraID:     cam.ID,
		File:         fileNum,
		SegmentIndex: segIdx,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		StartOffset:  rec.StartOffset,
		EndOffset:    rec.EndOffset,
		Unit:         rec.Unit,
	}
}

// indexOffsetsStrategy 直接采用设备写入的偏移量
type indexOffsetsStrategy struct{}

func (s *indexOffsetsStrategy) Name() string { return config.StrategyIndexOffsets }

func (s *indexOffsetsStrategy) DeriveSegments(_ context.Context, cam models.Camera, fileNum int, records []models.SegmentRecord) []models.CatalogEntry {
	var entries []models.CatalogEntry
	for i := range records {
		entries = append(entries, baseEntry(cam, fileNum, i, &records[i]))
	}
	return entries
}

// wholeFileStrategy 忽略记录内偏移, 每文件一段覆盖整个媒体文件
type wholeFileStrategy struct{}

func (s *wholeFileStrategy) Name() string { return config.StrategyWholeFile }

func (s *wholeFileStrategy) DeriveSegments(_ context.Context, cam models.Camera, fileNum int, records []models.SegmentRecord) []models.CatalogEntry {
	if len(records) == 0 {
		return nil
	}

	info, err := os.Stat(hikidx.MediaFile(cam.Path, fileNum))
	if err != nil {
		return nil
	}

	// 时间范围取记录的并集
	first := records[0]
	start, end := first.StartTime, first.EndTime
	for _, r := range records[1:] {
		if r.StartTime < start {
			start = r.StartTime
		}
		if r.EndTime > end {
			end = r.EndTime
		}
	}

	return []models.CatalogEntry{{
		CameraID:    cam.ID,
		File:        fileNum,
		StartTime:   start,
		EndTime:     end,
		StartOffset: 0,
		EndOffset:   uint64(info.Size()),
		Unit:        models.UnitBytes,
	}}
}

// ffprobeStrategy 结束时间以 ffprobe 探测的容器时长为准
type ffprobeStrategy struct {
	prober mediaProber
}

func (s *ffprobeStrategy) Name() string { return config.StrategyFFprobeDuration }

func (s *ffprobeStrategy) DeriveSegments(ctx context.Context, cam models.Camera, fileNum int, records []models.SegmentRecord) []models.CatalogEntry {
	if len(records) == 0 {
		return nil
	}

	media := hikidx.MediaFile(cam.Path, fileNum)
	duration, err := s.prober.Duration(ctx, media)
	if err != nil {
		logging.Debug("时长探测失败, 回退设备偏移", "file", media, "error", err)
		fallback := indexOffsetsStrategy{}
		return fallback.DeriveSegments(ctx, cam, fileNum, records)
	}

	rec := records[0]
	return []models.CatalogEntry{{
		CameraID:    cam.ID,
		File:        fileNum,
		StartTime:   rec.StartTime,
		EndTime:     rec.StartTime + int64(duration),
		StartOffset: 0,
		EndOffset:   uint64(duration), // 整秒, 与 Unit 标签一致
		Unit:        models.UnitSeconds,
	}}
}

// sceneStrategy ffmpeg 场景切换时间点切分段落
//
// 设备记录给出文件的整体时间范围, 场景切换把它切成等语义的
// 子段落, 偏移为容器内秒。探测失败回退设备偏移
type sceneStrategy struct {
	prober    mediaProber
	threshold float64
}

func (s *sceneStrategy) Name() string { return config.StrategySceneDetection }

func (s *sceneStrategy) DeriveSegments(ctx context.Context, cam models.Camera, fileNum int, records []models.SegmentRecord) []models.CatalogEntry {
	if len(records) == 0 {
		return nil
	}

	media := hikidx.MediaFile(cam.Path, fileNum)
	scenes, err := s.prober.SceneChanges(ctx, media, s.threshold)
	if err != nil {
		logging.Debug("场景探测失败, 回退设备偏移", "file", media, "error", err)
		fallback := indexOffsetsStrategy{}
		return fallback.DeriveSegments(ctx, cam, fileNum, records)
	}

	// 时间范围取记录的并集
	start, end := records[0].StartTime, records[0].EndTime
	for _, r := range records[1:] {
		if r.StartTime < start {
			start = r.StartTime
		}
		if r.EndTime > end {
			end = r.EndTime
		}
	}
	total := float64(end - start)

	// 切分点限定在范围内且单调递增
	bounds := []float64{0}
	for _, t := range scenes {
		if t > bounds[len(bounds)-1] && t < total {
			bounds = append(bounds, t)
		}
	}
	bounds = append(bounds, total)

	var entries []models.CatalogEntry
	for i := 0; i+1 < len(bounds); i++ {
		if bounds[i+1] <= bounds[i] {
			continue
		}
		entries = append(entries, models.CatalogEntry{
			CameraID:     cam.ID,
			File:         fileNum,
			SegmentIndex: i,
			StartTime:    start + int64(bounds[i]),
			EndTime:      start + int64(bounds[i+1]),
			StartOffset:  uint64(bounds[i]),
			EndOffset:    uint64(bounds[i+1]),
			Unit:         models.UnitSeconds,
		})
	}
	return entries
}

// keyframeStrategy 设备偏移 + MP4 样本表的关键帧精确寻址
//
// 段落起始偏移对齐到不晚于它的最近关键帧, 并携带完整的
// 样本号 -> 字节偏移映射供播放端 seek
type keyframeStrategy struct{}

func (s *keyframeStrategy) Name() string { return config.StrategyKeyframe }

func (s *keyframeStrategy) DeriveSegments(ctx context.Context, cam models.Camera, fileNum int, records []models.SegmentRecord) []models.CatalogEntry {
	if len(records) == 0 {
		return nil
	}

	keyframes, err := kfcache.ParseKeyframes(hikidx.MediaFile(cam.Path, fileNum))
	if err != nil {
		keyframes = nil
	}

	var entries []models.CatalogEntry
	for i := range records {
		entry := baseEntry(cam, fileNum, i, &records[i])
		// 样本表缺失时退回整文件/设备上报的范围
		if len(keyframes) > 0 && entry.Unit == models.UnitBytes {
			entry.Keyframes = keyframes
			entry.StartOffset = snapToKeyframe(keyframes, entry.StartOffset)
		}
		entries = append(entries, entry)
	}
	return entries
}

// snapToKeyframe 不晚于 offset 的最近关键帧偏移, 没有则保持原值
func snapToKeyframe(keyframes []models.KeyframeOffset, offset uint64) uint64 {
	best := offset
	found := false
	for _, kf := range keyframes {
		if kf.Offset <= offset {
			best = kf.Offset
			found = true
		} else {
			break
		}
	}
	if !found {
		return offset
	}
	return best
}
