package server

import "time"

// StartTicker 启动房间协程：事件与 Tick 在同一协程内串行处理
func (r *Room) StartTicker() {
	if !r.tickerStarted.CompareAndSwap(false, true) {
		return
	}
	go r.run()
}

func (r *Room) run() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			r.shutdown()
			return
		case ev := <-r.events:
			start := time.Now()
			r.handle(ev)
			r.metrics.AddEvent(time.Since(start).Nanoseconds())
		case <-ticker.C:
			start := time.Now()
			r.Tick()
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}
}

// Tick 周期性推进：冷却恢复 → 命中判定 → 清理过期去重键
func (r *Room) Tick() {
	now := r.now()
	r.sweepCooldowns(now)
	r.detectHits(now)
	r.hits.gc(now)
}
