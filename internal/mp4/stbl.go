package mp4

import (
	"encoding/binary"
	"os"

	"footage-browser/internal/models"
)

// ChunkRun stsc 表中的一段映射: 从 FirstChunk 起每块 SamplesPerChunk 个样本
type ChunkRun struct {
	FirstChunk      uint32 // 1 起始
	SamplesPerChunk uint32
}

// SampleSizes 样本大小查询
// stsz 的统一大小和逐样本表两种形态归一成按样本号查询
type SampleSizes struct {
	uniform uint32
	table   []uint32
	count   uint32
}

// Count 样本总数
func (s *SampleSizes) Count() uint32 { return s.count }

// Size 按 1 起始样本号查大小
func (s *SampleSizes) Size(sample uint32) (uint32, bool) {
	if sample == 0 || sample > s.count {
		return 0, false
	}
	if s.uniform != 0 {
		return s.uniform, true
	}
	if int(sample) > len(s.table) {
		return 0, false
	}
	return s.table[sample-1], true
}

// SampleTable stbl 中关键帧寻址所需的四张子表
type SampleTable struct {
	SyncSamples  []uint32 // stss: 关键帧样本号, 升序
	ChunkOffsets []uint64 // stco/co64: 每块的绝对字节偏移
	Runs         []ChunkRun
	Sizes        SampleSizes
}

// fullBoxPayload 跳过 version/flags, 并校验余量
func fullBoxPayload(data []byte, need int) ([]byte, bool) {
	if len(data) < 4+need {
		return nil, false
	}
	return data[4:], true
}

// DecodeSampleTable 解码 stbl 负载
//
// 任何一张子表缺失或截断都不报错, 按空表处理,
// 最终体现为空的关键帧偏移序列
func DecodeSampleTable(stbl []byte) SampleTable {
	var t SampleTable
	t.SyncSamples = decodeStss(stbl)
	t.ChunkOffsets = decodeChunkOffsets(stbl)
	t.Runs = decodeStsc(stbl)
	t.Sizes = decodeStsz(stbl)
	return t
}

func decodeStss(stbl []byte) []uint32 {
	data, ok := FindBoxInBuf(stbl, "stss")
	if !ok {
		return nil
	}
	body, ok := fullBoxPayload(data, 4)
	if !ok {
		return nil
	}

	count := int(binary.BigEndian.Uint32(body[0:4]))
	// 截断的表按实际字节数收缩
	if avail := (len(body) - 4) / 4; count > avail {
		count = avail
	}

	samples := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		samples = append(samples, binary.BigEndian.Uint32(body[4+i*4:8+i*4]))
	}
	return samples
}

// decodeChunkOffsets 块偏移表, 32 位 stco 缺失时回退 64 位 co64
func decodeChunkOffsets(stbl []byte) []uint64 {
	if data, ok := FindBoxInBuf(stbl, "stco"); ok {
		body, ok := fullBoxPayload(data, 4)
		if !ok {
			return nil
		}
		count := int(binary.BigEndian.Uint32(body[0:4]))
		if avail := (len(body) - 4) / 4; count > avail {
			count = avail
		}
		offsets := make([]uint64, 0, count)
		for i := 0; i < count; i++ {
			offsets = append(offsets, uint64(binary.BigEndian.Uint32(body[4+i*4:8+i*4])))
		}
		return offsets
	}

	data, ok := FindBoxInBuf(stbl, "co64")
	if !ok {
		return nil
	}
	body, ok := fullBoxPayload(data, 4)
	if !ok {
		return nil
	}
	count := int(binary.BigEndian.Uint32(body[0:4]))
	if avail := (len(body) - 4) / 8; count > avail {
		count = avail
	}
	offsets := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		offsets = append(offsets, binary.BigEndian.Uint64(body[4+i*8:12+i*8]))
	}
	return offsets
}

func decodeStsc(stbl []byte) []ChunkRun {
	data, ok := FindBoxInBuf(stbl, "stsc")
	if !ok {
		return nil
	}
	body, ok := fullBoxPayload(data, 4)
	if !ok {
		return nil
	}

	count := int(binary.BigEndian.Uint32(body[0:4]))
	if avail := (len(body) - 4) / 12; count > avail {
		count = avail
	}

	runs := make([]ChunkRun, 0, count)
	for i := 0; i < count; i++ {
		base := 4 + i*12
		first := binary.BigEndian.Uint32(body[base : base+4])
		// first_chunk 为 1 起始且严格递增, 违反的段丢弃
		if first == 0 || (len(runs) > 0 && first <= runs[len(runs)-1].FirstChunk) {
			continue
		}
		runs = append(runs, ChunkRun{
			FirstChunk:      first,
			SamplesPerChunk: binary.BigEndian.Uint32(body[base+4 : base+8]),
			// 第三个字段 sample_description_index 不使用
		})
	}
	return runs
}

func decodeStsz(stbl []byte) SampleSizes {
	data, ok := FindBoxInBuf(stbl, "stsz")
	if !ok {
		return SampleSizes{}
	}
	body, ok := fullBoxPayload(data, 8)
	if !ok {
		return SampleSizes{}
	}

	uniform := binary.BigEndian.Uint32(body[0:4])
	count := binary.BigEndian.Uint32(body[4:8])

	if uniform != 0 {
		// 所有样本同大小, 无逐样本表
		return SampleSizes{uniform: uniform, count: count}
	}

	n := int(count)
	if avail := (len(body) - 8) / 4; n > avail {
		n = avail
	}
	table := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		table = append(table, binary.BigEndian.Uint32(body[8+i*4:12+i*4]))
	}
	return SampleSizes{table: table, count: uint32(n)}
}

// samplePos 样本在块内的位置
type samplePos struct {
	chunk  int    // 块下标, 0 起始
	offset uint64 // 块内字节偏移
}

// KeyframeOffsets 把同步样本解析为 (样本号, 绝对字节偏移) 序列
//
// 先沿 stsc 段走出 样本号 -> (块, 块内偏移) 映射: 每段覆盖
// [FirstChunk, 下一段FirstChunk), 末段延伸到最后一块; 块内偏移
// 按样本大小逐个累加。映射中不存在的同步样本静默跳过。
// 块偏移表或样本表为空时结果为空序列, 不是错误
func (t *SampleTable) KeyframeOffsets() []models.KeyframeOffset {
	if len(t.SyncSamples) == 0 || len(t.ChunkOffsets) == 0 || t.Sizes.Count() == 0 {
		return nil
	}

	posBySample := make(map[uint32]samplePos)
	sample := uint32(1)

walk:
	for i, run := range t.Runs {
		// first_chunk 为 1 起始, 0 只会出现在损坏的表里
		if run.FirstChunk == 0 {
			break walk
		}

		lastChunk := uint32(len(t.ChunkOffsets)) + 1
		if i+1 < len(t.Runs) {
			lastChunk = t.Runs[i+1].FirstChunk
		}

		for chunk := run.FirstChunk; chunk < lastChunk; chunk++ {
			if int(chunk) > len(t.ChunkOffsets) {
				break walk
			}

			var offset uint64
			for j := uint32(0); j < run.SamplesPerChunk; j++ {
				size, ok := t.Sizes.Size(sample)
				if !ok {
					break walk
				}
				posBySample[sample] = samplePos{chunk: int(chunk) - 1, offset: offset}
				offset += uint64(size)
				sample++
			}
		}
	}

	var keyframes []models.KeyframeOffset
	for _, sync := range t.SyncSamples {
		pos, ok := posBySample[sync]
		if !ok {
			continue
		}
		keyframes = append(keyframes, models.KeyframeOffset{
			Sample: sync,
			Offset: t.ChunkOffsets[pos.chunk] + pos.offset,
		})
	}
	return keyframes
}

// ParseKeyframes 解析媒体文件的关键帧字节偏移
//
// moov 在文件句柄上查找, 其余盒子在整块读入的 moov 负载内查找。
// 任何盒子缺失都得到空序列。计算出的偏移越过文件尾的条目被丢弃
func ParseKeyframes(path string) ([]models.KeyframeOffset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := info.Size()

	moov, ok := FindBox(f, 0, fileSize, "moov")
	if !ok {
		return nil, nil
	}

	moovData := make([]byte, moov.Size)
	if _, err := f.ReadAt(moovData, moov.Offset); err != nil {
		return nil, nil
	}

	// 第一个 trak 即视频轨
	stbl := moovData
	for _, tag := range []string{"trak", "mdia", "minf", "stbl"} {
		stbl, ok = FindBoxInBuf(stbl, tag)
		if !ok {
			return nil, nil
		}
	}

	table := DecodeSampleTable(stbl)

	var keyframes []models.KeyframeOffset
	for _, kf := range table.KeyframeOffsets() {
		if kf.Offset >= uint64(fileSize) {
			continue
		}
		keyframes = append(keyframes, kf)
	}
	return keyframes, nil
}
