package scan

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"footage-browser/internal/config"
	"footage-browser/internal/hikidx"
	"footage-browser/internal/logging"
	"footage-browser/internal/models"
)

// Orchestrator 扫描编排器
//
// 逐摄像机、逐文件顺序扫描。扫描通过 Run 循环串行执行,
// 进行中的扫描吸收后续触发请求 (触发通道容量 1, 重复信号合并),
// 同一索引文件上不会有两个并发扫描。取消在文件号边界检查
type Orchestrator struct {
	cfg      *config.Config
	strategy Strategy
	tracker  *Tracker
	store    *Store

	trigger chan struct{}
	scanMu  sync.Mutex // 串行化扫描本身

	mu          sync.RWMutex
	scanning    bool
	progress    models.ScanProgress
	catalog     *models.Catalog
	subscribers map[int]func(models.ScanProgress)
	nextSub     int
}

// New 创建编排器, 启动时加载已有目录文档
func New(cfg *config.Config, strategy Strategy) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		strategy: strategy,
		tracker:  NewTracker(cfg.Storage.MtimeFile),
		store: &Store{
			CacheFile:    cfg.Storage.CacheFile,
			ProgressFile: cfg.Storage.ProgressFile,
		},
		trigger:     make(chan struct{}, 1),
		subscribers: make(map[int]func(models.ScanProgress)),
	}

	catalog, err := o.store.LoadCatalog()
	if err != nil {
		logging.Warn("目录文档加载失败", "error", err)
		catalog = emptyCatalog()
	}
	o.catalog = catalog
	return o
}

// Store 底层持久化
func (o *Orchestrator) Store() *Store { return o.store }

// Catalog 当前目录
func (o *Orchestrator) Catalog() *models.Catalog {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.catalog
}

// Progress 当前进度与是否在扫描中
func (o *Orchestrator) Progress() (models.ScanProgress, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress, o.scanning
}

// Subscribe 注册进度回调, 返回注销函数
func (o *Orchestrator) Subscribe(fn func(models.ScanProgress)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// RequestRescan 请求一次重扫
//
// 文件变化通知和 API 触发都走这里; 已有待处理触发时信号被合并
func (o *Orchestrator) RequestRescan() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run 周期 + 触发驱动的扫描循环, ctx 取消后返回
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.ScanInterval())
	defer ticker.Stop()

	// 启动即扫一遍
	if _, err := o.ScanAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("扫描失败", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.trigger:
		}

		if _, err := o.ScanAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("扫描失败", "error", err)
		}
	}
}

// ScanAll 执行一次完整扫描并产出段落目录
//
// 索引缺失或头部损坏的摄像机贡献零段落 (带原因码),
// 不影响其余摄像机
func (o *Orchestrator) ScanAll(ctx context.Context) (*models.Catalog, error) {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()

	cameras := hikidx.DiscoverCameras(o.cfg.Storage.Datadirs)

	o.mu.Lock()
	o.scanning = true
	prev := o.catalog
	o.mu.Unlock()

	started := time.Now()
	logging.Info("扫描开始", "cameras", len(cameras), "strategy", o.strategy.Name())

	if err := o.tracker.Load(); err != nil {
		logging.Warn("增量跟踪加载失败, 全量重扫", "error", err)
	}

	catalog := &models.Catalog{
		Cameras:   cameras,
		Segments:  make(map[int][]models.CatalogEntry),
		Reasons:   make(map[int]models.ReasonCode),
		UpdatedAt: time.Now().Unix(),
	}

	for i, cam := range cameras {
		if ctx.Err() != nil {
			break
		}
		entries, reason := o.scanCamera(ctx, cam, i, len(cameras), prev)
		catalog.Segments[cam.ID] = entries
		catalog.Reasons[cam.ID] = reason
	}

	if err := ctx.Err(); err != nil {
		o.mu.Lock()
		o.scanning = false
		o.mu.Unlock()
		return nil, err
	}

	if err := o.tracker.Flush(); err != nil {
		logging.Warn("增量跟踪保存失败", "error", err)
	}
	if err := o.store.SaveCatalog(catalog); err != nil {
		logging.Error("目录文档保存失败", "error", err)
	}
	o.store.ClearProgress()

	o.mu.Lock()
	o.catalog = catalog
	o.scanning = false
	o.mu.Unlock()

	total := 0
	for _, segs := range catalog.Segments {
		total += len(segs)
	}
	logging.Info("扫描完成", "segments", total,
		"duration", time.Since(started).Round(time.Millisecond))

	return catalog, nil
}

// scanCamera 扫描单路摄像机
func (o *Orchestrator) scanCamera(ctx context.Context, cam models.Camera, camIdx, totalCams int, prev *models.Catalog) ([]models.CatalogEntry, models.ReasonCode) {
	f, err := os.Open(cam.IndexFile)
	if err != nil {
		logging.Warn("索引文件缺失", "camera", cam.Name, "path", cam.IndexFile)
		return nil, models.ReasonNoIndex
	}
	defer f.Close()

	hdr, err := hikidx.DecodeHeader(f)
	if err != nil {
		logging.Warn("索引头部损坏", "camera", cam.Name, "error", err)
		return nil, models.ReasonMalformedHeader
	}

	opts := hikidx.DecodeOptions{
		Layout:          o.cfg.Parser.RecordLayout,
		Mode:            o.cfg.Parser.RecordMode,
		Unit:            o.cfg.Parser.OffsetUnit,
		MinSegmentBytes: o.cfg.Parser.MinSegmentBytes,
	}

	// 上次扫描的结果按文件号索引, 供跳过的文件复用。
	// 按目录路径匹配上次的摄像机: ID 是位置性的, 目录增减会移位
	prevByFile := make(map[int][]models.CatalogEntry)
	if prev != nil {
		for _, pc := range prev.Cameras {
			if pc.Path != cam.Path {
				continue
			}
			for _, e := range prev.Segments[pc.ID] {
				prevByFile[e.File] = append(prevByFile[e.File], e)
			}
			break
		}
	}

	var entries []models.CatalogEntry
	totalFiles := int(hdr.FileCount)

	for fileNum := 0; fileNum < totalFiles; fileNum++ {
		// 取消只在文件号边界生效, 不打断记录解码
		if ctx.Err() != nil {
			break
		}

		mediaSize, mtime := int64(-1), int64(0)
		if info, err := os.Stat(hikidx.MediaFile(cam.Path, fileNum)); err == nil {
			mediaSize = info.Size()
			mtime = info.ModTime().Unix()
		}

		if mtime != 0 && !o.tracker.ShouldReparse(cam.Path, fileNum, mtime) {
			// 未变化: 跳过解码, 保留上次的段落, ID 归属到本轮的摄像机
			for _, e := range prevByFile[fileNum] {
				e.CameraID = cam.ID
				entries = append(entries, e)
			}
		} else {
			records := hikidx.DecodeFileSegments(f, hdr, fileNum, mediaSize, opts)
			entries = append(entries, o.strategy.DeriveSegments(ctx, cam, fileNum, records)...)
			if mtime != 0 {
				o.tracker.Record(cam.Path, fileNum, mtime)
			}
		}

		o.updateProgress(models.ScanProgress{
			CameraIndex:  camIdx,
			TotalCameras: totalCams,
			FilesDone:    fileNum + 1,
			TotalFiles:   totalFiles,
			Timestamp:    time.Now().Unix(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime < entries[j].StartTime
	})

	if len(entries) == 0 {
		return nil, models.ReasonNoRecordings
	}
	return entries, models.ReasonOK
}

func (o *Orchestrator) updateProgress(p models.ScanProgress) {
	o.mu.Lock()
	o.progress = p
	subs := make([]func(models.ScanProgress), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	o.store.WriteProgress(p)
	for _, fn := range subs {
		fn(p)
	}
}
