package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box 构造 4 字节大端 size + tag + 负载
func box(tag string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(payload)))
	copy(buf[4:8], tag)
	copy(buf[8:], payload)
	return buf
}

func u32be(values ...uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func TestFindBoxInBuf(t *testing.T) {
	data := append(box("free", []byte{1, 2, 3}), box("moov", []byte("payload"))...)

	payload, ok := FindBoxInBuf(data, "moov")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), payload)

	_, ok = FindBoxInBuf(data, "mdat")
	assert.False(t, ok)
}

func TestFindBoxInBufSizeZeroTerminates(t *testing.T) {
	// size 0 的非匹配盒子终止遍历, 任何 tag 查找都不得越界
	data := make([]byte, 64)
	copy(data[4:8], "free")

	for _, tag := range []string{"moov", "trak", "stbl", "free"} {
		if tag == "free" {
			// size 0 匹配时负载延伸到缓冲区末尾
			payload, ok := FindBoxInBuf(data, tag)
			require.True(t, ok)
			assert.Len(t, payload, 56)
			continue
		}
		_, ok := FindBoxInBuf(data, tag)
		assert.False(t, ok, "tag %s", tag)
	}
}

func TestFindBoxInBufSizePastEnd(t *testing.T) {
	// 声明 size 越过缓冲区末尾的盒子视为损坏, 终止而非回绕
	data := make([]byte, 32)
	binary.BigEndian.PutUint32(data[0:4], 1000)
	copy(data[4:8], "free")

	_, ok := FindBoxInBuf(data, "moov")
	assert.False(t, ok)

	// 匹配的 tag 同样不得返回越界负载
	_, ok = FindBoxInBuf(data, "free")
	assert.False(t, ok)
}

func TestFindBoxInBufMalformedSize(t *testing.T) {
	// size 1..7 无法容纳盒子头部
	data := make([]byte, 32)
	binary.BigEndian.PutUint32(data[0:4], 3)
	copy(data[4:8], "free")

	_, ok := FindBoxInBuf(data, "moov")
	assert.False(t, ok)
}

func TestFindBoxFileShape(t *testing.T) {
	data := append(box("ftyp", []byte("isom")), box("moov", []byte("abcdef"))...)
	r := bytes.NewReader(data)

	b, ok := FindBox(r, 0, int64(len(data)), "moov")
	require.True(t, ok)
	assert.Equal(t, "moov", b.Type)
	assert.Equal(t, int64(6), b.Size)

	payload := make([]byte, b.Size)
	_, err := r.ReadAt(payload, b.Offset)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), payload)

	_, ok = FindBox(r, 0, int64(len(data)), "mdat")
	assert.False(t, ok)
}

func TestFindBoxRangeBound(t *testing.T) {
	data := append(box("ftyp", []byte("isom")), box("moov", []byte("abcdef"))...)
	r := bytes.NewReader(data)

	// 搜索范围不含 moov 时不得找到
	_, ok := FindBox(r, 0, int64(len(data)-5), "moov")
	assert.False(t, ok)
}
