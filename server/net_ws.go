package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tactigrid/config"
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed bool // 仅房间协程读写
	netCfg config.NetworkConfig
}

func NewClientConn(ws *websocket.Conn, netCfg config.NetworkConfig) *ClientConn {
	return &ClientConn{
		ws:     ws,
		send:   make(chan []byte, netCfg.SendQueueSize),
		netCfg: netCfg,
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		// 慢客户端丢弃，防止阻塞房间协程
		Log.Debugw("send queue full, dropping message", "remote", c.ws.RemoteAddr().String())
	}
}

// Close 关闭发送队列，写协程写完剩余消息后关闭连接
func (c *ClientConn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ping := time.NewTicker(c.netCfg.ReadTimeout * 9 / 10)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.netCfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				Log.Debugw("write failed", "remote", c.ws.RemoteAddr().String(), "err", err)
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.netCfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，校验后注入房间
func (c *ClientConn) readPump(room *Room, sid SessionID) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在房间协程中移除该会话
	defer room.RequestLeave(sid)
	c.ws.SetReadLimit(c.netCfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.netCfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.netCfg.ReadTimeout))
	})

	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				Log.Infow("read failed", "room", room.ID, "session", sid, "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.netCfg.ReadTimeout))

		var req Request
		if msgType == websocket.BinaryMessage {
			req, err = DecodeBinaryChunk(payload)
		} else {
			req, err = DecodeMessage(payload)
		}
		if err != nil {
			room.metrics.IncInputsRejected()
			lvl := Log.Warnw
			if errors.Is(err, ErrUnknownType) {
				lvl = Log.Debugw
			}
			lvl("message rejected", "room", room.ID, "session", sid, "err", err)
			continue
		}
		if !room.OnInput(sid, req) {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：/ws?room=main，会话 ID 由服务端分配
func (m *RoomManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = m.cfg.Server.DefaultRoom
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "remote", r.RemoteAddr, "err", err)
		return
	}

	room := m.GetOrCreateRoom(roomID)
	sid := SessionID(uuid.New().String())
	client := NewClientConn(ws, m.cfg.Network)
	if !room.Connect(sid, client) {
		_ = ws.Close()
		return
	}

	go client.writePump()
	go client.readPump(room, sid)
}
