package server

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tactigrid/config"
)

// Sender 连接的发送端；房间只通过它向客户端投递消息
type Sender interface {
	Enqueue(b []byte)
	Close()
}

type eventKind int

const (
	evConnect eventKind = iota
	evMessage
	evDisconnect
	evAttackDue
	evCall
)

// event 房间协程处理的唯一入口：网络消息、断线、定时器到期、管理调用
type event struct {
	kind     eventKind
	session  SessionID
	conn     Sender
	req      Request
	attackID int64
	call     func(*Room)
	done     chan struct{}
}

// Room 房间世界：权威状态维护在内存，只由房间协程读写
type Room struct {
	ID string

	cfg     config.GameConfig
	now     func() time.Time
	metrics *RoomMetrics

	sessions map[SessionID]Sender
	Players  map[SessionID]*Player
	joinSeq  map[SessionID]uint64
	nextSeq  uint64

	board        BoardConfig
	attacks      []*Attack
	saved        []SavedAttack
	lastAttackID int64
	uploads      *Reassembler
	hits         *hitLedger
	tasks        *Scheduler

	events    chan event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	tickerStarted atomic.Bool
}

// NewRoom 创建房间，初始化数据结构；presets 作为初始的已保存攻击
func NewRoom(id string, cfg *config.Config, presets []SavedAttack) *Room {
	return &Room{
		ID:       id,
		cfg:      cfg.Game,
		now:      time.Now,
		metrics:  &RoomMetrics{},
		sessions: make(map[SessionID]Sender),
		Players:  make(map[SessionID]*Player),
		joinSeq:  make(map[SessionID]uint64),
		board: BoardConfig{
			Grid: GridConfig{
				Width:  clampInt(cfg.Game.GridWidth, cfg.Game.GridMin, cfg.Game.GridMax),
				Height: clampInt(cfg.Game.GridHeight, cfg.Game.GridMin, cfg.Game.GridMax),
			},
			Background: Background{Config: defaultBackgroundStyle()},
		},
		saved:   append([]SavedAttack(nil), presets...),
		uploads: NewReassembler(cfg.Upload.MaxChunks, cfg.Upload.MaxBytes),
		hits:    newHitLedger(),
		tasks:   NewScheduler(),
		events:  make(chan event, cfg.Network.EventQueueSize), // 足够缓冲，避免网络读阻塞
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Metrics 房间运行指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Submit 投递事件到房间协程；队列满时阻塞等待，房间关闭后返回 false
func (r *Room) Submit(ev event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	default:
	}
	r.metrics.IncQueueFull()
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Connect 注册新连接（尚未 joinGame，只接收广播）
func (r *Room) Connect(sid SessionID, conn Sender) bool {
	return r.Submit(event{kind: evConnect, session: sid, conn: conn})
}

// OnInput 入站请求，按到达顺序在房间协程中处理
func (r *Room) OnInput(sid SessionID, req Request) bool {
	return r.Submit(event{kind: evMessage, session: sid, req: req})
}

// RequestLeave 请求在房间协程中移除会话，避免并发改动房间状态
func (r *Room) RequestLeave(sid SessionID) bool {
	return r.Submit(event{kind: evDisconnect, session: sid})
}

// Do 在房间协程中执行 fn 并等待完成（管理接口使用）
func (r *Room) Do(fn func(*Room)) bool {
	done := make(chan struct{})
	if !r.Submit(event{kind: evCall, call: fn, done: done}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-r.stopped:
		return false
	}
}

// handle 处理单个事件直到完成；所有状态修改都经过这里
func (r *Room) handle(ev event) {
	switch ev.kind {
	case evConnect:
		r.connect(ev.session, ev.conn)
	case evDisconnect:
		r.disconnect(ev.session)
	case evAttackDue:
		if r.completeAttack(ev.attackID) {
			r.metrics.IncAttacksCompleted()
		}
	case evCall:
		ev.call(r)
		close(ev.done)
	case evMessage:
		r.dispatch(ev.session, ev.req)
	}
}

func (r *Room) dispatch(sid SessionID, req Request) {
	switch m := req.(type) {
	case JoinRequest:
		r.JoinPlayer(sid, m)
	case MoveRequest:
		r.requestMove(sid, m.X, m.Y)
	case TokenRequest:
		r.updateToken(sid, m)
	case GridRequest:
		r.updateGrid(m)
	case BackgroundRequest:
		r.updateBackground(m)
	case ChunkRequest:
		r.receiveChunk(sid, m)
	case LaunchRequest:
		r.launchAttack(sid, m)
	case CancelAttackRequest:
		r.cancelAttack(sid, m.AttackID)
	case SaveAttackRequest:
		r.saveAttack(sid, m)
	case SavedAttacksQuery:
		r.broadcast(OutSavedAttacksUpdate, r.savedSnapshot())
	case HitReport:
		r.reportHit(m)
	default:
		Log.Warnw("unhandled request", "room", r.ID, "session", sid, "type", req.Type())
	}
}

// connect 新连接先收到一份完整快照
func (r *Room) connect(sid SessionID, conn Sender) {
	if old, ok := r.sessions[sid]; ok {
		old.Close()
	}
	r.sessions[sid] = conn
	r.sendTo(sid, OutWelcome, WelcomeEvent{SessionID: string(sid)})
	r.sendTo(sid, OutBoardConfigUpdate, r.board)
	r.sendTo(sid, OutPlayersUpdate, r.playerSnapshot())
	r.sendTo(sid, OutActiveAttacks, r.attackSnapshot())
	r.sendTo(sid, OutSavedAttacksUpdate, r.savedSnapshot())
	Log.Infow("session connected", "room", r.ID, "session", sid, "sessions", len(r.sessions))
}

// JoinPlayer 将玩家加入房间；重复加入只更新颜色与外观，
// 位置、移动经济与命中数保留，位置变化只能经过 requestMove
func (r *Room) JoinPlayer(sid SessionID, req JoinRequest) *Player {
	color := req.Color
	if color == "" {
		color = "#3b82f6"
	}

	p, ok := r.Players[sid]
	if !ok {
		x, y := r.board.Grid.Width/2, r.board.Grid.Height/2
		if req.HasPosition {
			x = clampInt(req.X, 0, r.board.Grid.Width-1)
			y = clampInt(req.Y, 0, r.board.Grid.Height-1)
		}
		speed := clampInt(r.cfg.DefaultSpeed, MinSpeed, MaxSpeed)
		p = &Player{ID: sid, X: x, Y: y, Speed: speed, MovementPoints: float64(speed)}
		r.Players[sid] = p
		r.nextSeq++
		r.joinSeq[sid] = r.nextSeq
	}
	p.Color = color
	img := p.Token.Image
	p.Token = req.Token
	if p.Token == (TokenConfig{}) {
		p.Token = defaultTokenConfig()
	}
	if p.Token.Image == "" {
		p.Token.Image = img
	}
	Log.Infow("player joined", "room", r.ID, "session", sid, "x", p.X, "y", p.Y, "rejoin", ok, "players", len(r.Players))
	r.broadcastPlayers()
	return p
}

// updateToken 外观与速度更新
func (r *Room) updateToken(sid SessionID, req TokenRequest) {
	p, ok := r.Players[sid]
	if !ok {
		return
	}
	if req.Speed != nil {
		setSpeed(p, *req.Speed, r.now(), r.cfg.CooldownWindow)
	}
	if t := req.Token; t != nil {
		if t.Shape != "" {
			p.Token.Shape = t.Shape
		}
		if t.Size != "" {
			p.Token.Size = t.Size
		}
		if t.Opacity != nil {
			p.Token.Opacity = *t.Opacity
		}
	}
	switch {
	case req.ClearImg:
		p.Token.Image = ""
	case req.Image != nil:
		p.Token.Image = *req.Image
	}
	r.broadcastPlayers()
}

// disconnect 移除会话、玩家与其未完成的上传
func (r *Room) disconnect(sid SessionID) {
	if conn, ok := r.sessions[sid]; ok {
		conn.Close()
		delete(r.sessions, sid)
	}
	if r.uploads.Discard(sid) {
		r.metrics.IncUploadsDiscarded()
		Log.Infow("partial upload discarded", "room", r.ID, "session", sid)
	}
	_, wasPlayer := r.Players[sid]
	delete(r.Players, sid)
	delete(r.joinSeq, sid)
	Log.Infow("session disconnected", "room", r.ID, "session", sid, "sessions", len(r.sessions))
	if wasPlayer {
		r.broadcastPlayers()
	}
}

// sortedPlayers 按加入顺序返回玩家，保证快照顺序稳定
func (r *Room) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return r.joinSeq[out[i].ID] < r.joinSeq[out[j].ID] })
	return out
}

func (r *Room) playerSnapshot() []PlayerState {
	players := r.sortedPlayers()
	snapshot := make([]PlayerState, 0, len(players))
	for _, p := range players {
		snapshot = append(snapshot, p.State())
	}
	return snapshot
}

func (r *Room) broadcastPlayers() {
	r.broadcast(OutPlayersUpdate, r.playerSnapshot())
}

// broadcast 序列化一次，投递给所有连接（包括尚未 join 的观察者）
func (r *Room) broadcast(typ string, data any) {
	b, err := encodeOutput(typ, data)
	if err != nil {
		Log.Errorw("encode broadcast", "room", r.ID, "type", typ, "err", err)
		return
	}
	r.metrics.IncBroadcasts()
	for _, conn := range r.sessions {
		conn.Enqueue(b)
	}
}

func (r *Room) sendTo(sid SessionID, typ string, data any) {
	conn, ok := r.sessions[sid]
	if !ok {
		return
	}
	b, err := encodeOutput(typ, data)
	if err != nil {
		Log.Errorw("encode message", "room", r.ID, "type", typ, "err", err)
		return
	}
	conn.Enqueue(b)
}

// Close 停止房间协程，取消全部定时任务并断开所有连接
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	if r.tickerStarted.Load() {
		<-r.stopped
	} else {
		r.shutdown()
	}
}

func (r *Room) shutdown() {
	r.tasks.Stop()
	for sid, conn := range r.sessions {
		conn.Close()
		delete(r.sessions, sid)
	}
}
