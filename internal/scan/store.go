package scan

import (
	"encoding/json"
	"os"
	"path/filepath"

	"footage-browser/internal/models"
)

// Store 目录文档与进度文档的持久化
//
// 目录是 web 层消费的缓存文档, 每次扫描后原子替换;
// 进度文档是临时的, 每次更新整体覆盖, 扫描成功完成后删除
type Store struct {
	CacheFile    string
	ProgressFile string
}

// writeJSONAtomic 临时文件写入后 rename 原子替换
func writeJSONAtomic(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		os.MkdirAll(dir, 0755)
	}

	tmp := path + ".tmp"
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SaveCatalog 保存目录文档
func (s *Store) SaveCatalog(c *models.Catalog) error {
	return writeJSONAtomic(s.CacheFile, c)
}

// LoadCatalog 加载目录文档, 缺失时返回空目录
func (s *Store) LoadCatalog() (*models.Catalog, error) {
	data, err := os.ReadFile(s.CacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyCatalog(), nil
		}
		return nil, err
	}

	var c models.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Segments == nil {
		c.Segments = make(map[int][]models.CatalogEntry)
	}
	if c.Reasons == nil {
		c.Reasons = make(map[int]models.ReasonCode)
	}
	return &c, nil
}

// CacheSize 目录文档当前字节数
func (s *Store) CacheSize() int64 {
	info, err := os.Stat(s.CacheFile)
	if err != nil {
		return 0
	}
	return info.Size()
}

// WriteProgress 覆盖写进度文档
func (s *Store) WriteProgress(p models.ScanProgress) error {
	return writeJSONAtomic(s.ProgressFile, p)
}

// ClearProgress 扫描完成后删除进度文档
func (s *Store) ClearProgress() {
	os.Remove(s.ProgressFile)
}

func emptyCatalog() *models.Catalog {
	return &models.Catalog{
		Segments: make(map[int][]models.CatalogEntry),
		Reasons:  make(map[int]models.ReasonCode),
	}
}
