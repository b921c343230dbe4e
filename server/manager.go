package server

import (
	"sync"

	"tactigrid/config"
)

// RoomManager 管理多个房间的生命周期；每个房间是独立的世界
type RoomManager struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	cfg     *config.Config
	presets []SavedAttack
}

func NewRoomManager(cfg *config.Config, presets []SavedAttack) *RoomManager {
	return &RoomManager{
		rooms:   make(map[string]*Room),
		cfg:     cfg,
		presets: presets,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保房间协程已启动
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok = m.rooms[id]
	if !ok {
		r = NewRoom(id, m.cfg, m.presets)
		m.rooms[id] = r
		r.StartTicker()
		Log.Infow("room created", "room", id)
	}
	return r
}

// GetRoom 只查询，不创建
func (m *RoomManager) GetRoom(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// CloseAll 关闭所有房间（进程退出时调用）
func (m *RoomManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rooms {
		r.Close()
		delete(m.rooms, id)
	}
}
