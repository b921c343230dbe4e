package server

import (
	"sync"
	"time"
)

// Scheduler 以 ID 为键的延时任务表，支持显式取消。
// 回调在定时器协程中执行，不得直接改动房间状态，只能投递事件。
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[int64]*time.Timer
	stopped bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[int64]*time.Timer)}
}

// Schedule 在 d 之后执行 fn；同一 ID 重复登记时旧任务被替换
func (s *Scheduler) Schedule(id int64, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.tasks[id]; ok {
		old.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		current, ok := s.tasks[id]
		if !ok || current != timer {
			s.mu.Unlock()
			return
		}
		delete(s.tasks, id)
		s.mu.Unlock()
		fn()
	})
	s.tasks[id] = timer
}

// Cancel 取消尚未触发的任务，返回是否真的取消了
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.tasks[id]
	if !ok {
		return false
	}
	delete(s.tasks, id)
	return timer.Stop()
}

// Pending 尚未触发的任务数
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop 取消全部任务，之后的 Schedule 被忽略
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.tasks {
		timer.Stop()
		delete(s.tasks, id)
	}
}
