package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// chunkBuffer 单个上传者的分片槽位，按下标拼接，与到达顺序无关
type chunkBuffer struct {
	slots  [][]byte
	have   []bool
	filled int
	size   int
}

func newChunkBuffer(total int) *chunkBuffer {
	return &chunkBuffer{slots: make([][]byte, total), have: make([]bool, total)}
}

// put 同一下标重发时覆盖旧数据
func (b *chunkBuffer) put(index int, data []byte) {
	if b.have[index] {
		b.size -= len(b.slots[index])
	} else {
		b.have[index] = true
		b.filled++
	}
	b.slots[index] = append([]byte(nil), data...)
	b.size += len(data)
}

func (b *chunkBuffer) complete() bool {
	return b.filled == len(b.slots)
}

func (b *chunkBuffer) assemble() []byte {
	return bytes.Join(b.slots, nil)
}

// Reassembler 按会话隔离的分片重组器；只由房间协程访问
type Reassembler struct {
	maxChunks int
	maxBytes  int
	buffers   map[SessionID]*chunkBuffer
}

func NewReassembler(maxChunks, maxBytes int) *Reassembler {
	return &Reassembler{
		maxChunks: maxChunks,
		maxBytes:  maxBytes,
		buffers:   make(map[SessionID]*chunkBuffer),
	}
}

// Receive 存入一个分片；全部到齐时返回拼接结果并释放缓冲
func (ra *Reassembler) Receive(sid SessionID, index, total int, data []byte) ([]byte, bool, error) {
	if total < 1 || total > ra.maxChunks {
		return nil, false, fmt.Errorf("total %d (max %d): %w", total, ra.maxChunks, ErrChunkTotal)
	}
	if index < 0 || index >= total {
		return nil, false, fmt.Errorf("index %d of %d: %w", index, total, ErrChunkIndex)
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("index %d: %w", index, ErrEmptyChunk)
	}
	buf, ok := ra.buffers[sid]
	if ok && len(buf.slots) != total {
		// total 变化视为重新开始上传，旧的未完成缓冲作废
		Log.Warnw("upload restarted with different total", "session", sid, "old", len(buf.slots), "new", total)
		ok = false
	}
	if !ok {
		buf = newChunkBuffer(total)
		ra.buffers[sid] = buf
	}
	buf.put(index, data)
	if buf.size > ra.maxBytes {
		delete(ra.buffers, sid)
		return nil, false, fmt.Errorf("%d bytes (max %d): %w", buf.size, ra.maxBytes, ErrAssetTooLarge)
	}
	if !buf.complete() {
		return nil, false, nil
	}
	delete(ra.buffers, sid)
	return buf.assemble(), true, nil
}

// Discard 丢弃会话未完成的缓冲，返回是否存在
func (ra *Reassembler) Discard(sid SessionID) bool {
	if _, ok := ra.buffers[sid]; !ok {
		return false
	}
	delete(ra.buffers, sid)
	return true
}

// Pending 正在进行中的上传数
func (ra *Reassembler) Pending() int { return len(ra.buffers) }

// Progress 某会话已收到/总分片数
func (ra *Reassembler) Progress(sid SessionID) (int, int) {
	buf, ok := ra.buffers[sid]
	if !ok {
		return 0, 0
	}
	return buf.filled, len(buf.slots)
}

func (r *Room) receiveChunk(sid SessionID, req ChunkRequest) {
	r.metrics.IncChunksReceived()
	asset, done, err := r.uploads.Receive(sid, req.Index, req.Total, req.Data)
	if err != nil {
		if errors.Is(err, ErrAssetTooLarge) {
			r.metrics.IncUploadsDiscarded()
		}
		Log.Warnw("chunk rejected", "room", r.ID, "session", sid, "index", req.Index, "total", req.Total, "err", err)
		return
	}
	if !done {
		return
	}
	r.metrics.IncUploadsCompleted()
	r.installBackground(assetImage(asset, req.Binary))
}

// assetImage 把重组结果转成可放进 JSON 的图片地址。
// 文本分片本身就是 data URL；二进制帧若不是 data URL 文本，按原始字节编码为 base64 data URL
func assetImage(asset []byte, binary bool) string {
	if utf8.Valid(asset) && (!binary || bytes.HasPrefix(asset, []byte("data:"))) {
		return string(asset)
	}
	mediaType, _, _ := strings.Cut(http.DetectContentType(asset), ";")
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(asset)
}
