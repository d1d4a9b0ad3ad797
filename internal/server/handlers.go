// Package server HTTP API 层
//
// 只读消费扫描核心产出的段落目录, 并按字节范围回放媒体文件
package server

import (
	"fmt"
	"os"
	"time"

	"github.com/kataras/iris/v12"

	"footage-browser/internal/config"
	"footage-browser/internal/hikidx"
	"footage-browser/internal/models"
	"footage-browser/internal/scan"
)

// Handlers API 处理器
type Handlers struct {
	cfg  *config.Config
	orch *scan.Orchestrator
}

// NewHandlers 创建处理器
func NewHandlers(cfg *config.Config, orch *scan.Orchestrator) *Handlers {
	return &Handlers{cfg: cfg, orch: orch}
}

// RegisterRoutes 注册全部路由
func RegisterRoutes(app *iris.Application, h *Handlers) {
	api := app.Party("/api/v1")
	api.Get("/config", h.GetConfig)
	api.Get("/cameras", h.GetCameras)
	api.Get("/segments", h.GetSegments)
	api.Post("/scan", h.TriggerScan)
	api.Get("/scan/status", h.GetScanStatus)

	app.Get("/video", h.GetVideo)
	app.Get("/ws/progress", h.HandleProgressWS)
}

// inWindow 开始时间是否落在 [start, end] 闭区间内
func inWindow(startTime, start, end int64) bool {
	return startTime >= start && startTime <= end
}

// formatSize 字节数的人类可读形式
func formatSize(n uint64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
	}
}

// GetConfig 获取运行配置概要
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	catalog := h.orch.Catalog()

	ctx.JSON(iris.Map{
		"title":       h.cfg.App.Title,
		"strategy":    h.cfg.Parser.Strategy,
		"offset_unit": h.cfg.Parser.OffsetUnit,
		"cameras":     len(catalog.Cameras),
		"cache_size":  formatSize(uint64(h.orch.Store().CacheSize())),
		"updated_at":  catalog.UpdatedAt,
	})
}

// GetCameras 摄像机列表, 附每路的最近录像时间与原因码
// GET /api/v1/cameras
func (h *Handlers) GetCameras(ctx iris.Context) {
	catalog := h.orch.Catalog()

	type cameraInfo struct {
		models.Camera
		Reason        models.ReasonCode `json:"reason"`
		SegmentCount  int               `json:"segment_count"`
		LastRecording string            `json:"last_recording,omitempty"`
	}

	cameras := make([]cameraInfo, 0, len(catalog.Cameras))
	for _, cam := range catalog.Cameras {
		info := cameraInfo{Camera: cam, Reason: catalog.Reasons[cam.ID]}
		segs := catalog.Segments[cam.ID]
		info.SegmentCount = len(segs)

		var latest int64
		for _, s := range segs {
			if s.StartTime > latest {
				latest = s.StartTime
			}
		}
		if latest > 0 {
			info.LastRecording = time.Unix(latest, 0).Format("2006-01-02 15:04:05")
		}
		cameras = append(cameras, info)
	}

	ctx.JSON(iris.Map{"cameras": cameras})
}

// GetSegments 时间窗内的段落列表
// GET /api/v1/segments?days=7&camera=0
func (h *Handlers) GetSegments(ctx iris.Context) {
	days := ctx.URLParamIntDefault("days", h.cfg.Display.DefaultDays)
	cameraID, camErr := ctx.URLParamInt("camera")

	end := time.Now().Unix()
	start := time.Now().AddDate(0, 0, -days).Unix()

	catalog := h.orch.Catalog()

	type segmentInfo struct {
		models.CatalogEntry
		CameraName string `json:"camera_name"`
		StartStr   string `json:"start_time_str"`
		Size       string `json:"size,omitempty"`
	}

	nameByID := make(map[int]string)
	for _, cam := range catalog.Cameras {
		nameByID[cam.ID] = cam.Name
	}

	segments := []segmentInfo{}
	for camID, segs := range catalog.Segments {
		// camera 参数存在时按摄像机过滤
		if camErr == nil && camID != cameraID {
			continue
		}
		for _, s := range segs {
			if !inWindow(s.StartTime, start, end) {
				continue
			}
			info := segmentInfo{
				CatalogEntry: s,
				CameraName:   nameByID[camID],
				StartStr:     time.Unix(s.StartTime, 0).Format("2006-01-02 15:04:05"),
			}
			// 关键帧映射体积大, 列表接口不返回
			info.Keyframes = nil
			if size := s.SizeBytes(); size > 0 {
				info.Size = formatSize(size)
			}
			segments = append(segments, info)
		}
	}

	ctx.JSON(iris.Map{"segments": segments, "days": days})
}

// TriggerScan 触发一次重扫, 进行中的扫描会吸收该请求
// POST /api/v1/scan
func (h *Handlers) TriggerScan(ctx iris.Context) {
	h.orch.RequestRescan()
	ctx.JSON(iris.Map{"status": "requested"})
}

// GetScanStatus 扫描状态与进度
// GET /api/v1/scan/status
func (h *Handlers) GetScanStatus(ctx iris.Context) {
	progress, scanning := h.orch.Progress()

	status := "idle"
	if scanning {
		status = "scanning"
	}
	ctx.JSON(iris.Map{"status": status, "progress": progress})
}

// GetVideo 媒体文件回放 (支持 Range)
// GET /video?camera=0&file=12
func (h *Handlers) GetVideo(ctx iris.Context) {
	cameraID, err := ctx.URLParamInt("camera")
	if err != nil {
		ctx.StopWithText(iris.StatusBadRequest, "camera 参数缺失")
		return
	}
	fileNum, err := ctx.URLParamInt("file")
	if err != nil {
		ctx.StopWithText(iris.StatusBadRequest, "file 参数缺失")
		return
	}

	catalog := h.orch.Catalog()
	var cam *models.Camera
	for i := range catalog.Cameras {
		if catalog.Cameras[i].ID == cameraID {
			cam = &catalog.Cameras[i]
			break
		}
	}
	if cam == nil {
		ctx.StopWithText(iris.StatusNotFound, "摄像机不存在")
		return
	}

	media := hikidx.MediaFile(cam.Path, fileNum)
	if _, err := os.Stat(media); err != nil {
		ctx.StopWithText(iris.StatusNotFound, "媒体文件不存在")
		return
	}

	ctx.ContentType("video/mp4")
	ctx.ServeFile(media)
}
