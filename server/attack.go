package server

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Cell 攻击覆盖的格子；Phase 从 0 开始
type Cell struct {
	X     int `json:"x" yaml:"x"`
	Y     int `json:"y" yaml:"y"`
	Phase int `json:"phase" yaml:"phase"`
}

// Attack 已发动的攻击，发动后不可变，只会被移除一次
type Attack struct {
	ID        int64
	Name      string
	CreatedBy SessionID
	StartTime time.Time
	Cells     []Cell
	MaxPhase  int
	Duration  time.Duration
}

// AttackState 广播给客户端的攻击快照
type AttackState struct {
	ID         int64  `json:"id"`
	Name       string `json:"name,omitempty"`
	CreatedBy  string `json:"createdBy"`
	StartTime  int64  `json:"startTime"` // unix ms
	Cells      []Cell `json:"cells"`
	MaxPhase   int    `json:"maxPhase"`
	DurationMs int64  `json:"duration"`
}

func (a *Attack) State() AttackState {
	return AttackState{
		ID:         a.ID,
		Name:       a.Name,
		CreatedBy:  string(a.CreatedBy),
		StartTime:  a.StartTime.UnixMilli(),
		Cells:      a.Cells,
		MaxPhase:   a.MaxPhase,
		DurationMs: a.Duration.Milliseconds(),
	}
}

// SavedAttack 保存的攻击图案（只追加，不修改）
type SavedAttack struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Cells     []Cell `json:"cells"`
	CreatedBy string `json:"createdBy"`
	SavedAt   int64  `json:"savedAt"`
}

// CellState 某一时刻格子的派生状态
type CellState int

const (
	CellPending CellState = iota
	CellWarning
	CellActive
	CellExpired
)

func (s CellState) String() string {
	switch s {
	case CellPending:
		return "pending"
	case CellWarning:
		return "warning"
	case CellActive:
		return "active"
	default:
		return "expired"
	}
}

// AttackTiming 攻击时序：阶段间隔、预警时长、生效结束时间（相对阶段开始）
type AttackTiming struct {
	Phase   time.Duration
	Warning time.Duration
	Effect  time.Duration
}

// Duration 攻击总时长 = (maxPhase+1)*Phase + Effect
func (t AttackTiming) Duration(maxPhase int) time.Duration {
	return time.Duration(maxPhase+1)*t.Phase + t.Effect
}

// CellState 前端渲染与服务端命中判定必须用同一套区间
func (t AttackTiming) CellState(phase int, elapsed time.Duration) CellState {
	phaseStart := time.Duration(phase) * t.Phase
	if elapsed < phaseStart {
		return CellPending
	}
	inPhase := elapsed - phaseStart
	switch {
	case inPhase <= t.Warning:
		return CellWarning
	case inPhase <= t.Effect:
		return CellActive
	default:
		return CellExpired
	}
}

func maxPhase(cells []Cell) int {
	m := 0
	for _, c := range cells {
		if c.Phase > m {
			m = c.Phase
		}
	}
	return m
}

// ParseAttackCells 把客户端的 cells 强制转换为整数格子；缺坐标的格子丢弃，phase 缺省为 0
func ParseAttackCells(raw json.RawMessage) ([]Cell, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoCells
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, ErrCellsNotList
	}
	if len(items) == 0 {
		return nil, ErrNoCells
	}
	cells := make([]Cell, 0, len(items))
	for _, item := range items {
		var w struct {
			X, Y, Phase json.RawMessage
		}
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		x, okX := coerceInt(w.X)
		y, okY := coerceInt(w.Y)
		if !okX || !okY {
			continue
		}
		phase, ok := coerceInt(w.Phase)
		if !ok || phase < 0 {
			phase = 0
		}
		cells = append(cells, Cell{X: x, Y: y, Phase: phase})
	}
	if len(cells) == 0 {
		return nil, ErrNoValidCells
	}
	return cells, nil
}

func (r *Room) timing() AttackTiming {
	return AttackTiming{Phase: r.cfg.PhaseInterval, Warning: r.cfg.WarningWindow, Effect: r.cfg.EffectWindow}
}

// nextAttackID 以毫秒时间戳为 ID，同一毫秒内递增保证唯一
func (r *Room) nextAttackID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= r.lastAttackID {
		id = r.lastAttackID + 1
	}
	r.lastAttackID = id
	return id
}

// launchAttack 发动攻击：登记、广播，并在总时长后安排唯一一次清理
func (r *Room) launchAttack(sid SessionID, req LaunchRequest) {
	now := r.now()
	mp := maxPhase(req.Cells)
	a := &Attack{
		ID:        r.nextAttackID(now),
		Name:      req.Name,
		CreatedBy: sid,
		StartTime: now,
		Cells:     append([]Cell(nil), req.Cells...),
		MaxPhase:  mp,
		Duration:  r.timing().Duration(mp),
	}
	r.attacks = append(r.attacks, a)
	id := a.ID
	r.tasks.Schedule(id, a.Duration, func() {
		r.Submit(event{kind: evAttackDue, attackID: id})
	})
	r.metrics.IncAttacksLaunched()
	Log.Infow("attack launched", "room", r.ID, "attack", id, "by", sid, "cells", len(a.Cells), "maxPhase", mp, "duration", a.Duration)
	r.broadcast(OutNewAttack, a.State())
	r.detectHits(now)
}

// completeAttack 定时器到期：从活动集合移除并广播完成；重复调用是 no-op
func (r *Room) completeAttack(id int64) bool {
	idx := -1
	for i, a := range r.attacks {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	r.attacks = append(r.attacks[:idx], r.attacks[idx+1:]...)
	r.tasks.Cancel(id)
	r.hits.forgetAttack(id)
	r.broadcast(OutAttackComplete, id)
	return true
}

// cancelAttack 仅发起者可提前撤销自己的攻击
func (r *Room) cancelAttack(sid SessionID, id int64) {
	for _, a := range r.attacks {
		if a.ID != id {
			continue
		}
		if a.CreatedBy != sid {
			Log.Warnw("cancel rejected: not owner", "room", r.ID, "attack", id, "session", sid)
			return
		}
		if r.completeAttack(id) {
			r.metrics.IncAttacksCancelled()
			Log.Infow("attack cancelled", "room", r.ID, "attack", id)
		}
		return
	}
}

func (r *Room) saveAttack(sid SessionID, req SaveAttackRequest) {
	sa := SavedAttack{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Cells:     append([]Cell(nil), req.Cells...),
		CreatedBy: string(sid),
		SavedAt:   r.now().UnixMilli(),
	}
	r.saved = append(r.saved, sa)
	r.broadcast(OutSavedAttacksUpdate, r.savedSnapshot())
}

func (r *Room) savedSnapshot() []SavedAttack {
	return append([]SavedAttack{}, r.saved...)
}

func (r *Room) attackSnapshot() []AttackState {
	out := make([]AttackState, 0, len(r.attacks))
	for _, a := range r.attacks {
		out = append(out, a.State())
	}
	return out
}
