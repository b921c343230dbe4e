package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	EventCount       int64 // 处理的事件数
	TotalEventNs     int64 // 事件处理累计耗时（纳秒）
	TickCount        int64 // 统计的 Tick 次数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
	QueueFull        int64 // 投递时事件队列已满的次数
	InputsRejected   int64 // 边界校验失败被丢弃的消息数
	MovesAccepted    int64
	MovesRejected    int64
	Regenerations    int64 // 移动点恢复次数
	AttacksLaunched  int64
	AttacksCompleted int64
	AttacksCancelled int64
	HitsCredited     int64
	ChunksReceived   int64
	UploadsCompleted int64
	UploadsDiscarded int64 // 断线或超限而作废的上传
	Broadcasts       int64
}

func (m *RoomMetrics) IncQueueFull()        { atomic.AddInt64(&m.QueueFull, 1) }
func (m *RoomMetrics) IncInputsRejected()   { atomic.AddInt64(&m.InputsRejected, 1) }
func (m *RoomMetrics) IncMovesAccepted()    { atomic.AddInt64(&m.MovesAccepted, 1) }
func (m *RoomMetrics) IncMovesRejected()    { atomic.AddInt64(&m.MovesRejected, 1) }
func (m *RoomMetrics) IncRegenerations()    { atomic.AddInt64(&m.Regenerations, 1) }
func (m *RoomMetrics) IncAttacksLaunched()  { atomic.AddInt64(&m.AttacksLaunched, 1) }
func (m *RoomMetrics) IncAttacksCompleted() { atomic.AddInt64(&m.AttacksCompleted, 1) }
func (m *RoomMetrics) IncAttacksCancelled() { atomic.AddInt64(&m.AttacksCancelled, 1) }
func (m *RoomMetrics) IncHitsCredited()     { atomic.AddInt64(&m.HitsCredited, 1) }
func (m *RoomMetrics) IncChunksReceived()   { atomic.AddInt64(&m.ChunksReceived, 1) }
func (m *RoomMetrics) IncUploadsCompleted() { atomic.AddInt64(&m.UploadsCompleted, 1) }
func (m *RoomMetrics) IncUploadsDiscarded() { atomic.AddInt64(&m.UploadsDiscarded, 1) }
func (m *RoomMetrics) IncBroadcasts()       { atomic.AddInt64(&m.Broadcasts, 1) }

func (m *RoomMetrics) AddEvent(ns int64) {
	atomic.AddInt64(&m.EventCount, 1)
	atomic.AddInt64(&m.TotalEventNs, ns)
}

func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

func avgMs(total, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count) / 1e6
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	events := atomic.LoadInt64(&m.EventCount)
	ticks := atomic.LoadInt64(&m.TickCount)
	return map[string]any{
		"event_count":       events,
		"avg_event_ms":      avgMs(atomic.LoadInt64(&m.TotalEventNs), events),
		"tick_count":        ticks,
		"avg_tick_ms":       avgMs(atomic.LoadInt64(&m.TotalTickNs), ticks),
		"queue_full":        atomic.LoadInt64(&m.QueueFull),
		"inputs_rejected":   atomic.LoadInt64(&m.InputsRejected),
		"moves_accepted":    atomic.LoadInt64(&m.MovesAccepted),
		"moves_rejected":    atomic.LoadInt64(&m.MovesRejected),
		"regenerations":     atomic.LoadInt64(&m.Regenerations),
		"attacks_launched":  atomic.LoadInt64(&m.AttacksLaunched),
		"attacks_completed": atomic.LoadInt64(&m.AttacksCompleted),
		"attacks_cancelled": atomic.LoadInt64(&m.AttacksCancelled),
		"hits_credited":     atomic.LoadInt64(&m.HitsCredited),
		"chunks_received":   atomic.LoadInt64(&m.ChunksReceived),
		"uploads_completed": atomic.LoadInt64(&m.UploadsCompleted),
		"uploads_discarded": atomic.LoadInt64(&m.UploadsDiscarded),
		"broadcasts":        atomic.LoadInt64(&m.Broadcasts),
	}
}
