package hikidx

import (
	"encoding/binary"
	"io"

	"footage-browser/internal/models"
)

// DecodeOptions 段落记录解码选项
type DecodeOptions struct {
	Layout models.RecordLayout
	Mode   models.RecordMode
	Unit   models.OffsetUnit

	// MinSegmentBytes 字节单位下段落的最小长度, 低于此值视为无效
	MinSegmentBytes uint64
}

// 记录内字段偏移
const (
	recTypeOffset  = 0
	recStartTime   = 36
	recEndTime     = 40
	recOffset32Lo  = 44 // v1: start_offset u32
	recOffset32Hi  = 48 // v1: end_offset u32
	recOffset64Lo  = 48 // v2: start_offset u64
	recOffset64Hi  = 56 // v2: end_offset u64
)

// decodeRecord 按指定布局解码单条 128 字节记录
func decodeRecord(data []byte, layout models.RecordLayout, unit models.OffsetUnit) models.SegmentRecord {
	rec := models.SegmentRecord{
		Type:      data[recTypeOffset],
		StartTime: int64(binary.LittleEndian.Uint32(data[recStartTime : recStartTime+4])),
		EndTime:   int64(binary.LittleEndian.Uint32(data[recEndTime : recEndTime+4])),
		Unit:      unit,
	}

	if layout == models.LayoutV2 {
		rec.StartOffset = binary.LittleEndian.Uint64(data[recOffset64Lo : recOffset64Lo+8])
		rec.EndOffset = binary.LittleEndian.Uint64(data[recOffset64Hi : recOffset64Hi+8])
	} else {
		rec.StartOffset = uint64(binary.LittleEndian.Uint32(data[recOffset32Lo : recOffset32Lo+4]))
		rec.EndOffset = uint64(binary.LittleEndian.Uint32(data[recOffset32Hi : recOffset32Hi+4]))
	}

	return rec
}

// valid 段落记录有效性判断
//
// mediaSize < 0 表示引用的媒体文件大小未知, 跳过上界检查。
// 偏移量为秒单位时不做字节级检查
func valid(rec *models.SegmentRecord, mediaSize int64, opt *DecodeOptions) bool {
	if rec.Type == 0 {
		return false
	}
	if rec.StartTime == 0 || rec.EndTime == 0 {
		return false
	}
	if rec.EndTime < rec.StartTime {
		return false
	}
	if rec.EndOffset <= rec.StartOffset {
		return false
	}

	if opt.Unit == models.UnitBytes {
		if rec.EndOffset-rec.StartOffset < opt.MinSegmentBytes {
			return false
		}
		if mediaSize >= 0 && rec.EndOffset > uint64(mediaSize) {
			return false
		}
	}

	return true
}

// DecodeFileSegments 解码文件号 fileNum 的全部有效段落记录
//
// 最多读取 MaxSegmentSlots 条固定长度记录, 短读即停止 (设备可能
// 正在写入, 截断不视为损坏, 已接受的记录保留)。无效记录静默丢弃。
// Mode 为 first 时遇到首条有效记录即返回
func DecodeFileSegments(r io.ReaderAt, hdr *Header, fileNum int, mediaSize int64, opt DecodeOptions) []models.SegmentRecord {
	block := make([]byte, MaxSegmentSlots*SegmentLen)
	n, err := r.ReadAt(block, hdr.SegmentBase(fileNum))
	if err != nil && err != io.EOF {
		n = 0
	}
	// 仅解析完整的记录
	slots := n / SegmentLen

	var segments []models.SegmentRecord
	for i := 0; i < slots; i++ {
		data := block[i*SegmentLen : (i+1)*SegmentLen]

		rec, ok := decodeSlot(data, mediaSize, &opt)
		if !ok {
			continue
		}

		segments = append(segments, rec)
		if opt.Mode == models.ModeFirst {
			break
		}
	}

	return segments
}

// decodeSlot 解码单个槽位, 布局为 auto 时做试解码识别:
// 先按 v1 解释, 不通过有效性检查再按 v2 解释
func decodeSlot(data []byte, mediaSize int64, opt *DecodeOptions) (models.SegmentRecord, bool) {
	switch opt.Layout {
	case models.LayoutV1, models.LayoutV2:
		rec := decodeRecord(data, opt.Layout, opt.Unit)
		return rec, valid(&rec, mediaSize, opt)
	default:
		rec := decodeRecord(data, models.LayoutV1, opt.Unit)
		if valid(&rec, mediaSize, opt) {
			return rec, true
		}
		rec = decodeRecord(data, models.LayoutV2, opt.Unit)
		return rec, valid(&rec, mediaSize, opt)
	}
}
