// Package mp4 MP4 容器的最小只读解析
//
// 仅覆盖关键帧寻址所需的盒子子集:
// moov/trak/mdia/minf/stbl/stss/stco/co64/stsc/stsz。
// 不解码任何视频负载。
package mp4

import (
	"encoding/binary"
	"io"
)

// 盒子头部: 4 字节大端 size + 4 字节 tag
const boxHeaderSize = 8

// Box 盒子负载的位置信息
type Box struct {
	Type   string
	Offset int64 // 负载起始 (盒子头部之后)
	Size   int64 // 负载长度
}

// FindBox 在文件句柄的 [start, end) 范围内顺序查找指定 tag 的盒子
//
// 所有 size 运算先做边界检查再读取, 任何畸形输入都不会越过
// 给定范围: 剩余不足 8 字节、声明 size 为 0 (至父级末尾的哨兵)、
// 或 size 会越过 end 时终止并返回未找到
func FindBox(r io.ReaderAt, start, end int64, tag string) (Box, bool) {
	header := make([]byte, boxHeaderSize)
	offset := start

	for offset+boxHeaderSize <= end {
		if _, err := r.ReadAt(header, offset); err != nil {
			return Box{}, false
		}

		size := int64(binary.BigEndian.Uint32(header[0:4]))
		name := string(header[4:8])

		if name == tag {
			payloadSize := size - boxHeaderSize
			if size == 0 {
				// 延伸到父级末尾
				payloadSize = end - offset - boxHeaderSize
			}
			if payloadSize < 0 || offset+boxHeaderSize+payloadSize > end {
				return Box{}, false
			}
			return Box{Type: name, Offset: offset + boxHeaderSize, Size: payloadSize}, true
		}

		if size < boxHeaderSize {
			// size 0 终止遍历, size 1..7 属于畸形数据
			return Box{}, false
		}
		if offset+size > end {
			// 越界的盒子视为损坏, 终止而非回绕
			return Box{}, false
		}
		offset += size
	}

	return Box{}, false
}

// FindBoxInBuf 在已读入内存的负载中查找盒子, 返回其负载切片
func FindBoxInBuf(data []byte, tag string) ([]byte, bool) {
	offset := 0

	for offset+boxHeaderSize <= len(data) {
		size := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		name := string(data[offset+4 : offset+8])

		if name == tag {
			payloadEnd := offset + size
			if size == 0 {
				payloadEnd = len(data)
			}
			if payloadEnd < offset+boxHeaderSize || payloadEnd > len(data) {
				return nil, false
			}
			return data[offset+boxHeaderSize : payloadEnd], true
		}

		if size < boxHeaderSize || offset+size > len(data) {
			return nil, false
		}
		offset += size
	}

	return nil, false
}
