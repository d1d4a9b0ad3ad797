// Package kfcache 关键帧偏移的 mmap 磁盘缓存
//
// MP4 样本表解析结果按固定内存布局落盘, 读取时 mmap 零拷贝。
//
// 缓存文件格式:
// Header (32 bytes):
//   Magic (4): "KIDX"
//   Version (4)
//   RecordCount (4)
//   FileHash (16): MD5
//   Reserved (4)
// Records (N * recordSize) - 与 models.KeyframeOffset 内存布局一致
package kfcache

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"footage-browser/internal/logging"
	"footage-browser/internal/models"
	"footage-browser/internal/mp4"
)

const (
	cacheMagic      = "KIDX"
	cacheVersion    = 1
	cacheHeaderSize = 32
)

var recordSize = int(unsafe.Sizeof(models.KeyframeOffset{}))

var (
	cacheDir   string
	cacheDirMu sync.Mutex
)

// SetCacheDir 设置缓存目录
func SetCacheDir(dir string) {
	cacheDirMu.Lock()
	defer cacheDirMu.Unlock()
	cacheDir = dir
	os.MkdirAll(dir, 0755)
}

// GetCacheDir 获取缓存目录, 默认工作目录下 .kf_cache
func GetCacheDir() string {
	cacheDirMu.Lock()
	defer cacheDirMu.Unlock()
	if cacheDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		cacheDir = filepath.Join(wd, ".kf_cache")
		os.MkdirAll(cacheDir, 0755)
	}
	return cacheDir
}

// fileHash 媒体文件的唯一标识: 文件名 + 大小 + 修改时间
// 文件内容变化后生成新的缓存路径, 旧缓存自然失效
func fileHash(mediaPath string) [16]byte {
	var hash [16]byte

	info, err := os.Stat(mediaPath)
	if err != nil {
		return hash
	}

	h := md5.New()
	h.Write([]byte(filepath.Base(mediaPath)))
	binary.Write(h, binary.LittleEndian, info.Size())
	binary.Write(h, binary.LittleEndian, info.ModTime().Unix())
	copy(hash[:], h.Sum(nil))
	return hash
}

func cachePath(mediaPath string) string {
	hash := fileHash(mediaPath)
	return filepath.Join(GetCacheDir(), fmt.Sprintf("%x.kidx", hash))
}

// Exists 检查缓存是否存在且至少含头部
func Exists(mediaPath string) bool {
	info, err := os.Stat(cachePath(mediaPath))
	if err != nil {
		return false
	}
	return info.Size() >= cacheHeaderSize
}

// Save 按 KeyframeOffset 内存布局写入缓存
func Save(mediaPath string, records []models.KeyframeOffset) error {
	if len(records) == 0 {
		return nil
	}

	hash := fileHash(mediaPath)

	f, err := os.Create(cachePath(mediaPath))
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, cacheHeaderSize)
	copy(header[0:4], cacheMagic)
	binary.LittleEndian.PutUint32(header[4:8], cacheVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(records)))
	copy(header[12:28], hash[:])

	if _, err := f.Write(header); err != nil {
		return err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(&records[0])), len(records)*recordSize)
	_, err = f.Write(data)
	return err
}

// Cache mmap 映射的关键帧缓存
type Cache struct {
	data    []byte
	count   int
	Records []models.KeyframeOffset // 直接指向 mmap 内存的零拷贝视图
}

// Load mmap 加载缓存
func Load(mediaPath string) (*Cache, error) {
	path := cachePath(mediaPath)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() < cacheHeaderSize {
		f.Close()
		return nil, fmt.Errorf("kfcache: cache file too small")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	// mmap 建立后 fd 可以关闭, 映射仍然有效
	f.Close()

	if string(data[0:4]) != cacheMagic {
		unix.Munmap(data)
		return nil, fmt.Errorf("kfcache: invalid magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != cacheVersion {
		unix.Munmap(data)
		return nil, fmt.Errorf("kfcache: version mismatch: got %d, want %d", v, cacheVersion)
	}

	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if int(info.Size()) < cacheHeaderSize+count*recordSize {
		unix.Munmap(data)
		return nil, fmt.Errorf("kfcache: cache file truncated")
	}

	c := &Cache{data: data, count: count}
	if count > 0 {
		ptr := unsafe.Pointer(&data[cacheHeaderSize])
		c.Records = unsafe.Slice((*models.KeyframeOffset)(ptr), count)
	}
	return c, nil
}

// Count 记录数量
func (c *Cache) Count() int { return c.count }

// Close 释放映射
func (c *Cache) Close() {
	if c.data != nil {
		unix.Munmap(c.data)
		c.data = nil
		c.Records = nil
		c.count = 0
	}
}

// ParseKeyframes 带缓存的关键帧解析
//
// 命中缓存时复制出切片后立即释放映射, 未命中时解析 MP4 并回写缓存
func ParseKeyframes(mediaPath string) ([]models.KeyframeOffset, error) {
	if Exists(mediaPath) {
		cache, err := Load(mediaPath)
		if err == nil {
			records := make([]models.KeyframeOffset, cache.Count())
			copy(records, cache.Records)
			cache.Close()
			logging.Debug("关键帧缓存 加载", "file", filepath.Base(mediaPath), "count", len(records))
			return records, nil
		}
		// 缓存无效, 继续解析原始文件
	}

	records, err := mp4.ParseKeyframes(mediaPath)
	if err != nil {
		return nil, err
	}

	if len(records) > 0 {
		if err := Save(mediaPath, records); err != nil {
			logging.Warn("关键帧缓存 保存失败", "error", err)
		} else {
			logging.Debug("关键帧缓存 保存", "file", filepath.Base(mediaPath), "count", len(records))
		}
	}

	return records, nil
}
