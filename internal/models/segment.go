// Package models 录像段与扫描目录的数据结构定义
package models

import "time"

// OffsetUnit 段落记录偏移量的单位
// 不同固件把 start_offset/end_offset 写成字节偏移或秒偏移，
// 索引文件本身不声明，必须由配置显式指定
type OffsetUnit string

const (
	UnitBytes   OffsetUnit = "bytes"   // 字节偏移
	UnitSeconds OffsetUnit = "seconds" // 容器内秒偏移 (带小数)
)

// RecordLayout 段落记录的固件代布局
type RecordLayout string

const (
	LayoutV1   RecordLayout = "v1"   // 32 位偏移 (times@36/40, offsets@44/48)
	LayoutV2   RecordLayout = "v2"   // 64 位偏移 (times@36/40, offsets@48/56)
	LayoutAuto RecordLayout = "auto" // 试解码自动识别
)

// RecordMode 每个文件取段落的方式
type RecordMode string

const (
	ModeFirst RecordMode = "first" // 每文件取第一条有效记录 (一段即一文件)
	ModeAll   RecordMode = "all"   // 取全部有效记录 (文件内真实分段)
)

// SegmentRecord 索引文件中的单条段落记录 (128 字节槽位)
type SegmentRecord struct {
	Type        uint8      // 记录类型, 0 = 空槽
	StartTime   int64      // Unix 秒
	EndTime     int64      // Unix 秒
	StartOffset uint64     // 单位由 Unit 决定
	EndOffset   uint64
	Unit        OffsetUnit // 偏移单位标签, 显式携带而非推断
}

// Duration 返回记录的持续时间
func (r *SegmentRecord) Duration() time.Duration {
	return time.Duration(r.EndTime-r.StartTime) * time.Second
}

// StartDateTime 返回开始时间
func (r *SegmentRecord) StartDateTime() time.Time {
	return time.Unix(r.StartTime, 0)
}

// Camera 一个 datadir 即一路摄像机
type Camera struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`  // 媒体文件根目录
	IndexFile string `json:"index"` // index00.bin 路径
}

// KeyframeOffset 关键帧样本号与其绝对字节偏移
type KeyframeOffset struct {
	Sample uint32 `json:"sample"` // 1 起始的样本号
	Offset uint64 `json:"offset"` // 文件内绝对字节偏移
}

// CatalogEntry 对外输出的段落目录条目
type CatalogEntry struct {
	CameraID     int              `json:"camera_id"`
	File         int              `json:"file"`
	SegmentIndex int              `json:"segment_index"`
	StartTime    int64            `json:"start_time"`
	EndTime      int64            `json:"end_time"`
	StartOffset  uint64           `json:"start_offset"`
	EndOffset    uint64           `json:"end_offset"`
	Unit         OffsetUnit       `json:"unit"`
	Keyframes    []KeyframeOffset `json:"keyframes,omitempty"` // 关键帧精确寻址时填充
}

// SizeBytes 段落占用的字节数 (仅字节单位时有意义)
func (e *CatalogEntry) SizeBytes() uint64 {
	if e.Unit != UnitBytes || e.EndOffset <= e.StartOffset {
		return 0
	}
	return e.EndOffset - e.StartOffset
}

// ReasonCode 摄像机零段落的诊断原因
// "解析不出段落" 与 "确实没有录像" 必须可区分
type ReasonCode string

const (
	ReasonOK              ReasonCode = "ok"
	ReasonNoIndex         ReasonCode = "no_index"          // 索引文件缺失
	ReasonMalformedHeader ReasonCode = "malformed_header"  // 头部过短
	ReasonNoRecordings    ReasonCode = "no_recordings"     // 头部有效但无有效记录
)

// CameraResult 单路摄像机一次扫描的结果
type CameraResult struct {
	Camera   Camera         `json:"camera"`
	Segments []CatalogEntry `json:"segments"`
	Reason   ReasonCode     `json:"reason"`
}

// Catalog 全部摄像机的段落目录, 即持久化的缓存文档
type Catalog struct {
	Cameras   []Camera                 `json:"cameras"`
	Segments  map[int][]CatalogEntry   `json:"segments"` // camera_id -> 按时间排序的段落
	Reasons   map[int]ReasonCode       `json:"reasons"`
	UpdatedAt int64                    `json:"updated_at"`
}

// ScanProgress 扫描进度, 每次更新整体覆盖, 扫描完成后删除
type ScanProgress struct {
	CameraIndex  int   `json:"camera_index"`
	TotalCameras int   `json:"total_cameras"`
	FilesDone    int   `json:"files_done"`
	TotalFiles   int   `json:"total_files"`
	Timestamp    int64 `json:"timestamp"`
}
