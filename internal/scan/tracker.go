// Package scan 扫描编排: 增量跟踪、段落推导策略与目录装配
package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Tracker 按 (目录, 文件) 记录上次成功解析时的修改时间,
// 重扫时跳过未变化的文件
//
// 键用摄像机的目录路径而不是位置性 ID: 目录增减会移位 ID,
// 路径在拓扑变化后仍然指向同一路摄像机。
// 持久化为 "{path}:{file}" -> mtime 的 JSON 文档,
// 扫描开始时整体加载, 结束时原子替换
type Tracker struct {
	path string

	mu   sync.Mutex
	seen map[string]int64
}

// NewTracker 创建跟踪器
func NewTracker(path string) *Tracker {
	return &Tracker{
		path: path,
		seen: make(map[string]int64),
	}
}

func trackerKey(cameraPath string, fileNum int) string {
	return fmt.Sprintf("%s:%d", cameraPath, fileNum)
}

// Load 加载上次扫描的记录, 文件缺失按空表处理
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen = make(map[string]int64)

	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &t.seen); err != nil {
		// 损坏的跟踪文件只导致全量重扫, 不算错误
		t.seen = make(map[string]int64)
	}
	return nil
}

// ShouldReparse 文件自上次成功解析后是否有变化
func (t *Tracker) ShouldReparse(cameraPath string, fileNum int, mtime int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.seen[trackerKey(cameraPath, fileNum)]
	return !ok || last != mtime
}

// Record 记录本次成功解析的修改时间
func (t *Tracker) Record(cameraPath string, fileNum int, mtime int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[trackerKey(cameraPath, fileNum)] = mtime
}

// Flush 原子替换持久化文件 (临时文件 + rename)
func (t *Tracker) Flush() error {
	t.mu.Lock()
	snapshot := make(map[string]int64, len(t.seen))
	for k, v := range t.seen {
		snapshot[k] = v
	}
	t.mu.Unlock()

	return writeJSONAtomic(t.path, snapshot)
}
