package server

import "time"

// SessionID 连接级唯一标识（由服务端在 WS 接入时分配）
type SessionID string

const (
	MinSpeed = 1
	MaxSpeed = 10
)

// TokenConfig 棋子外观；服务端只做枚举校验，不关心渲染
type TokenConfig struct {
	Shape   string  `json:"shape"`   // circle | square | hexagon
	Size    string  `json:"size"`    // fill | contain
	Opacity float64 `json:"opacity"` // 0..1
	Image   string  `json:"image,omitempty"`
}

var (
	tokenShapes = map[string]bool{"circle": true, "square": true, "hexagon": true}
	tokenSizes  = map[string]bool{"fill": true, "contain": true}
)

func defaultTokenConfig() TokenConfig {
	return TokenConfig{Shape: "circle", Size: "fill", Opacity: 1}
}

// Player 房间内的玩家实体（服务端权威状态），仅由房间协程读写
type Player struct {
	ID             SessionID
	X              int
	Y              int
	Color          string
	Speed          int
	MovementPoints float64
	CooldownAt     *time.Time // 最后一次被接受的移动时间；nil 表示不在冷却中
	HitCount       int
	Token          TokenConfig
}

// PlayerState 为广播给客户端的玩家快照
type PlayerState struct {
	ID                        string      `json:"id"`
	X                         int         `json:"x"`
	Y                         int         `json:"y"`
	Color                     string      `json:"color"`
	Speed                     int         `json:"speed"`
	MovementPoints            float64     `json:"movementPoints"`
	MovementCooldownTimestamp *int64      `json:"movementCooldownTimestamp"`
	HitCount                  int         `json:"hitCount"`
	TokenConfig               TokenConfig `json:"tokenConfig"`
}

// State 生成只读快照（值拷贝，避免外部持有内部指针）
func (p *Player) State() PlayerState {
	st := PlayerState{
		ID:             string(p.ID),
		X:              p.X,
		Y:              p.Y,
		Color:          p.Color,
		Speed:          p.Speed,
		MovementPoints: p.MovementPoints,
		HitCount:       p.HitCount,
		TokenConfig:    p.Token,
	}
	if p.CooldownAt != nil {
		ms := p.CooldownAt.UnixMilli()
		st.MovementCooldownTimestamp = &ms
	}
	return st
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
