package server

import "time"

// hitKey 同一 (玩家, 攻击, 阶段) 只记一次命中。
// 同一阶段两个格子同时覆盖一名玩家也只算一次。
type hitKey struct {
	Player SessionID
	Attack int64
	Phase  int
}

// hitLedger 命中去重表，值为过期时间
type hitLedger struct {
	seen map[hitKey]time.Time
}

func newHitLedger() *hitLedger {
	return &hitLedger{seen: make(map[hitKey]time.Time)}
}

// credit 首次出现返回 true 并登记
func (l *hitLedger) credit(k hitKey, expiry time.Time) bool {
	if _, ok := l.seen[k]; ok {
		return false
	}
	l.seen[k] = expiry
	return true
}

func (l *hitLedger) gc(now time.Time) {
	for k, exp := range l.seen {
		if !now.Before(exp) {
			delete(l.seen, k)
		}
	}
}

func (l *hitLedger) forgetAttack(id int64) {
	for k := range l.seen {
		if k.Attack == id {
			delete(l.seen, k)
		}
	}
}

func (l *hitLedger) len() int { return len(l.seen) }

type gridPos struct{ X, Y int }

// detectHits 检查所有活动攻击中处于 active 区间的格子，站在格子上的玩家记一次命中
func (r *Room) detectHits(now time.Time) {
	if len(r.attacks) == 0 || len(r.Players) == 0 {
		return
	}
	occupants := make(map[gridPos][]*Player, len(r.Players))
	for _, p := range r.sortedPlayers() {
		pos := gridPos{p.X, p.Y}
		occupants[pos] = append(occupants[pos], p)
	}

	timing := r.timing()
	credited := false
	for _, a := range r.attacks {
		elapsed := now.Sub(a.StartTime)
		for _, c := range a.Cells {
			if timing.CellState(c.Phase, elapsed) != CellActive {
				continue
			}
			for _, p := range occupants[gridPos{c.X, c.Y}] {
				key := hitKey{Player: p.ID, Attack: a.ID, Phase: c.Phase}
				// 保留到该阶段生效窗口结束之后，窗口内不会再次计数
				if !r.hits.credit(key, now.Add(timing.Effect)) {
					continue
				}
				p.HitCount++
				credited = true
				r.metrics.IncHitsCredited()
				Log.Debugw("hit", "room", r.ID, "player", p.ID, "attack", a.ID, "phase", c.Phase, "hitCount", p.HitCount)
				r.broadcast(OutPlayerHit, PlayerHitEvent{PlayerID: string(p.ID), HitCount: p.HitCount})
			}
		}
	}
	if credited {
		r.broadcastPlayers()
	}
}

// reportHit 客户端上报的命中，按原样信任
func (r *Room) reportHit(h HitReport) {
	p, ok := r.Players[h.PlayerID]
	if !ok {
		return
	}
	p.HitCount++
	r.broadcast(OutPlayerHit, PlayerHitEvent{PlayerID: string(p.ID), HitCount: p.HitCount})
	r.broadcastPlayers()
}
