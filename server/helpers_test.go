package server

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tactigrid/config"
)

// recorder 记录房间投递的消息，测试中同步驱动房间时使用
type recorder struct {
	msgs   []OutputMessage
	raw    []json.RawMessage
	closed bool
}

func (r *recorder) Enqueue(b []byte) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		panic(err)
	}
	r.msgs = append(r.msgs, OutputMessage{Type: env.Type})
	r.raw = append(r.raw, env.Data)
}

func (r *recorder) Close() { r.closed = true }

func (r *recorder) reset() {
	r.msgs = nil
	r.raw = nil
}

// ofType 返回指定类型消息的 data 部分
func (r *recorder) ofType(typ string) []json.RawMessage {
	var out []json.RawMessage
	for i, m := range r.msgs {
		if m.Type == typ {
			out = append(out, r.raw[i])
		}
	}
	return out
}

func (r *recorder) lastPlayers(t *testing.T) []PlayerState {
	t.Helper()
	updates := r.ofType(OutPlayersUpdate)
	require.NotEmpty(t, updates, "no playersUpdate received")
	var players []PlayerState
	require.NoError(t, json.Unmarshal(updates[len(updates)-1], &players))
	return players
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRoom(t *testing.T) (*Room, *fakeClock) {
	t.Helper()
	return newTestRoomWith(t, config.Defaults())
}

func newTestRoomWith(t *testing.T, cfg *config.Config) (*Room, *fakeClock) {
	t.Helper()
	r := NewRoom("test", cfg, nil)
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r.now = clk.Now
	t.Cleanup(r.Close)
	return r, clk
}

// connect 同步注册一个连接（不 join）
func connect(r *Room, sid SessionID) *recorder {
	rec := &recorder{}
	r.handle(event{kind: evConnect, session: sid, conn: rec})
	return rec
}

// joinAt 连接并以指定坐标加入
func joinAt(r *Room, sid SessionID, x, y int) *recorder {
	rec := connect(r, sid)
	send(r, sid, JoinRequest{X: x, Y: y, HasPosition: true})
	return rec
}

func send(r *Room, sid SessionID, req Request) {
	r.handle(event{kind: evMessage, session: sid, req: req})
}

// chanSender 供运行中的房间协程使用的线程安全 Sender
type chanSender struct {
	ch     chan []byte
	closed atomic.Bool
}

func newChanSender() *chanSender {
	return &chanSender{ch: make(chan []byte, 256)}
}

func (c *chanSender) Enqueue(b []byte) {
	select {
	case c.ch <- b:
	default:
	}
}

func (c *chanSender) Close() { c.closed.Store(true) }

// waitFor 等待指定类型的消息，返回其 data
func (c *chanSender) waitFor(t *testing.T, typ string, timeout time.Duration) json.RawMessage {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case b := <-c.ch:
			var env struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(b, &env))
			if env.Type == typ {
				return env.Data
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

const timeoutShort = 2 * time.Second
