package server

import (
	"encoding/json"
	"net/http"
)

func (m *RoomManager) roomFromQuery(r *http.Request) (string, *Room, bool) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = m.cfg.Server.DefaultRoom
	}
	room, ok := m.GetRoom(roomID)
	return roomID, room, ok
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// HandleAdminBoard 读取与更新棋盘配置（与 WS 更新走同一个房间协程）
// GET /admin/board?room=main   返回当前配置与在线情况
// POST /admin/board?room=main  载荷 {"grid":{...}} 或 {"background":{...}}
func (m *RoomManager) HandleAdminBoard(w http.ResponseWriter, r *http.Request) {
	roomID, room, ok := m.roomFromQuery(r)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		var payload map[string]any
		if !room.Do(func(rm *Room) {
			payload = map[string]any{
				"room":          roomID,
				"board":         rm.board,
				"players":       len(rm.Players),
				"sessions":      len(rm.sessions),
				"activeAttacks": len(rm.attacks),
				"savedAttacks":  len(rm.saved),
				"uploads":       rm.uploads.Pending(),
			}
		}) {
			http.Error(w, "room closed", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, payload)
	case http.MethodPost:
		var body struct {
			Grid       json.RawMessage `json:"grid,omitempty"`
			Background json.RawMessage `json:"background,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		var reqs []Request
		if len(body.Grid) > 0 {
			req, err := DecodeMessage(wrapEnvelope(MsgUpdateGridConfig, body.Grid))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			reqs = append(reqs, req)
		}
		if len(body.Background) > 0 {
			req, err := DecodeMessage(wrapEnvelope(MsgUpdateBackgroundConfig, body.Background))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			reqs = append(reqs, req)
		}
		if len(reqs) == 0 {
			http.Error(w, "nothing to update", http.StatusBadRequest)
			return
		}
		var board BoardConfig
		if !room.Do(func(rm *Room) {
			for _, req := range reqs {
				rm.dispatch("admin", req)
			}
			board = rm.board
		}) {
			http.Error(w, "room closed", http.StatusServiceUnavailable)
			return
		}
		Log.Infow("board updated via admin", "room", roomID, "grid", board.Grid)
		writeJSON(w, map[string]any{"ok": true, "board": board})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func wrapEnvelope(typ string, data json.RawMessage) []byte {
	b, _ := json.Marshal(InputMessage{Type: typ, Data: data})
	return b
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=main
func (m *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	roomID, room, ok := m.roomFromQuery(r)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"room":    roomID,
		"pending": room.tasks.Pending(),
		"metrics": room.metrics.Snapshot(),
	})
}
