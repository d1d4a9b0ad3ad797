// Package hikidx 录像机 index00.bin 固定布局索引解析
//
// 索引文件布局 (全部小端):
//   头部 1280 字节, 文件数量 u32 @ 偏移 12
//   文件描述表: file_count * 80 字节
//   段落记录区: 每文件固定保留 256 个 128 字节槽位, 顺序排列
package hikidx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"footage-browser/internal/models"
)

const (
	HeaderLen       = 1280 // 索引头部长度
	FileLen         = 80   // 单条文件描述长度
	SegmentLen      = 128  // 单条段落记录长度
	MaxSegmentSlots = 256  // 每文件保留的段落槽位数

	FileCountOffset = 12 // 头部内文件数量字段偏移

	// info.bin 中 datadir 数量字段的偏移
	InfoDatadirCountOffset = 64
)

// ErrMalformedHeader 头部字节数不足
var ErrMalformedHeader = errors.New("hikidx: malformed index header")

// MediaFile 返回文件号对应的媒体文件路径
func MediaFile(dir string, fileNum int) string {
	return filepath.Join(dir, fmt.Sprintf("hiv%05d.mp4", fileNum))
}

// ParseInfoBin 解析 NAS 根目录下的 info.bin, 返回 datadir 数量
func ParseInfoBin(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, InfoDatadirCountOffset); err != nil {
		return 0, fmt.Errorf("hikidx: info.bin 过短: %w", err)
	}
	return int(binary.LittleEndian.Uint32(buf)), nil
}

// DiscoverCameras 展开配置的根目录为摄像机列表
//
// 含 info.bin 的路径按 NAS 结构展开为 datadir0..N-1 子目录,
// 否则按单个 datadir 处理。不存在 index00.bin 的目录被跳过。
func DiscoverCameras(datadirs []string) []models.Camera {
	var cameras []models.Camera

	add := func(path string) {
		indexFile := filepath.Join(path, "index00.bin")
		if _, err := os.Stat(indexFile); err != nil {
			return
		}
		cameras = append(cameras, models.Camera{
			ID:        len(cameras),
			Name:      filepath.Base(path),
			Path:      path,
			IndexFile: indexFile,
		})
	}

	for _, dir := range datadirs {
		infoFile := filepath.Join(dir, "info.bin")
		if _, err := os.Stat(infoFile); err == nil {
			count, err := ParseInfoBin(infoFile)
			if err != nil {
				continue
			}
			for j := 0; j < count; j++ {
				add(filepath.Join(dir, fmt.Sprintf("datadir%d", j)))
			}
		} else {
			add(dir)
		}
	}

	return cameras
}
