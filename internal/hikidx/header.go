package hikidx

import (
	"encoding/binary"
	"io"
)

// Header 索引文件头部
type Header struct {
	FileCount uint32 // 声明的媒体文件数量
	Raw       []byte // 原始头部字节 (HeaderLen)
}

// DecodeHeader 解析固定长度的索引头部
//
// 字节不足返回 ErrMalformedHeader, 调用方按 "该摄像机无段落"
// 处理, 不中断整体扫描
func DecodeHeader(r io.Reader) (*Header, error) {
	raw := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, ErrMalformedHeader
	}

	return &Header{
		FileCount: binary.LittleEndian.Uint32(raw[FileCountOffset : FileCountOffset+4]),
		Raw:       raw,
	}, nil
}

// SegmentBase 返回文件号 n 的段落记录区起始偏移
//
// 每文件固定保留 MaxSegmentSlots 个槽位, 因此任意文件的记录
// 区位置可直接计算, 无需累计前序文件
func (h *Header) SegmentBase(fileNum int) int64 {
	return int64(HeaderLen) +
		int64(h.FileCount)*int64(FileLen) +
		int64(fileNum)*int64(MaxSegmentSlots)*int64(SegmentLen)
}
