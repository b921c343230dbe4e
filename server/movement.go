package server

import (
	"math"
	"time"
)

// MoveCost 欧氏距离，保留小数（斜走 1 格花费 √2）
func MoveCost(fromX, fromY, toX, toY int) float64 {
	return math.Hypot(float64(toX-fromX), float64(toY-fromY))
}

// onCooldown 最近一次移动后是否仍在冷却窗口内
func onCooldown(p *Player, now time.Time, window time.Duration) bool {
	return p.CooldownAt != nil && now.Sub(*p.CooldownAt) < window
}

// regenerate 冷却结束（或从未移动）时把移动点恢复为 speed，返回状态是否有变化
func regenerate(p *Player, now time.Time, window time.Duration) bool {
	if onCooldown(p, now, window) {
		return false
	}
	full := float64(p.Speed)
	changed := p.CooldownAt != nil || p.MovementPoints != full
	p.MovementPoints = full
	p.CooldownAt = nil
	return changed
}

// tryMove 代价不超过剩余移动点则接受：更新位置、扣点、重置冷却起点
func tryMove(p *Player, x, y int, now time.Time) bool {
	cost := MoveCost(p.X, p.Y, x, y)
	if cost > p.MovementPoints {
		return false
	}
	p.X, p.Y = x, y
	p.MovementPoints = math.Max(0, p.MovementPoints-cost)
	t := now
	p.CooldownAt = &t
	return true
}

// setSpeed 速度限制在 [1,10]；不在冷却中时立即按新速度补满
func setSpeed(p *Player, speed int, now time.Time, window time.Duration) {
	p.Speed = clampInt(speed, MinSpeed, MaxSpeed)
	if !onCooldown(p, now, window) {
		p.MovementPoints = float64(p.Speed)
		p.CooldownAt = nil
		return
	}
	p.MovementPoints = math.Min(p.MovementPoints, float64(p.Speed))
}

// requestMove 服务端权威的移动裁决；拒绝时不回任何消息
func (r *Room) requestMove(sid SessionID, x, y int) bool {
	p, ok := r.Players[sid]
	if !ok {
		return false
	}
	now := r.now()
	regenerated := regenerate(p, now, r.cfg.CooldownWindow)

	if !r.board.Grid.Contains(x, y) || !tryMove(p, x, y, now) {
		r.metrics.IncMovesRejected()
		Log.Debugw("move rejected", "room", r.ID, "session", sid, "from", []int{p.X, p.Y}, "to", []int{x, y}, "points", p.MovementPoints)
		if regenerated {
			r.metrics.IncRegenerations()
			r.broadcastPlayers()
		}
		return false
	}
	r.metrics.IncMovesAccepted()
	r.broadcastPlayers()
	r.detectHits(now)
	return true
}

// sweepCooldowns 周期性恢复空闲玩家的移动点，有变化才广播
func (r *Room) sweepCooldowns(now time.Time) {
	changed := false
	for _, p := range r.Players {
		if regenerate(p, now, r.cfg.CooldownWindow) {
			changed = true
			r.metrics.IncRegenerations()
		}
	}
	if changed {
		r.broadcastPlayers()
	}
}
