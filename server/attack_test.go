package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tactigrid/config"
)

var defaultTiming = AttackTiming{Phase: 800 * time.Millisecond, Warning: 500 * time.Millisecond, Effect: 1500 * time.Millisecond}

func TestAttackDuration(t *testing.T) {
	assert.Equal(t, 2300*time.Millisecond, defaultTiming.Duration(0))
	assert.Equal(t, 3100*time.Millisecond, defaultTiming.Duration(maxPhase([]Cell{{0, 0, 0}, {1, 1, 1}})))
	assert.Equal(t, 4700*time.Millisecond, defaultTiming.Duration(3))
}

func TestCellState(t *testing.T) {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	tests := []struct {
		phase   int
		elapsed time.Duration
		want    CellState
	}{
		{0, 0, CellWarning},
		{0, ms(500), CellWarning},
		{0, ms(501), CellActive},
		{0, ms(1500), CellActive},
		{0, ms(1501), CellExpired},
		{1, ms(799), CellPending},
		{1, ms(800), CellWarning},
		{1, ms(801), CellWarning},
		{1, ms(1300), CellWarning},
		{1, ms(1301), CellActive},
		{1, ms(2300), CellActive},
		{1, ms(2301), CellExpired},
		{3, ms(100), CellPending},
	}
	for _, tt := range tests {
		got := defaultTiming.CellState(tt.phase, tt.elapsed)
		assert.Equal(t, tt.want, got, "phase=%d elapsed=%v", tt.phase, tt.elapsed)
	}
}

func TestParseAttackCells(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Cell
		wantErr error
	}{
		{name: "missing", raw: ``, wantErr: ErrNoCells},
		{name: "null", raw: `null`, wantErr: ErrNoCells},
		{name: "not a list", raw: `{"x":1}`, wantErr: ErrCellsNotList},
		{name: "empty list", raw: `[]`, wantErr: ErrNoCells},
		{name: "nothing usable", raw: `[{"y":1},{"x":"abc","y":2},7]`, wantErr: ErrNoValidCells},
		{
			name: "coerces strings and defaults phase",
			raw:  `[{"x":"3","y":4.7},{"x":1,"y":2,"phase":"2"},{"x":0,"y":0,"phase":"oops"}]`,
			want: []Cell{{3, 4, 0}, {1, 2, 2}, {0, 0, 0}},
		},
		{
			name: "drops cells lacking coordinates",
			raw:  `[{"x":1},{"x":2,"y":2,"phase":1},{"x":null,"y":3}]`,
			want: []Cell{{2, 2, 1}},
		},
		{
			name: "negative phase becomes zero",
			raw:  `[{"x":1,"y":1,"phase":-2}]`,
			want: []Cell{{1, 1, 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells, err := ParseAttackCells(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cells)
		})
	}
}

func TestLaunchAttack(t *testing.T) {
	r, clk := newTestRoom(t)
	rec := connect(r, "a")
	rec.reset()

	send(r, "a", LaunchRequest{Name: "diag", Cells: []Cell{{0, 0, 0}, {1, 1, 1}}})

	news := rec.ofType(OutNewAttack)
	require.Len(t, news, 1)
	var st AttackState
	require.NoError(t, json.Unmarshal(news[0], &st))
	assert.Equal(t, clk.Now().UnixMilli(), st.ID)
	assert.Equal(t, "a", st.CreatedBy)
	assert.Equal(t, 1, st.MaxPhase)
	assert.Equal(t, int64(3100), st.DurationMs)
	assert.Equal(t, clk.Now().UnixMilli(), st.StartTime)
	require.Len(t, r.attacks, 1)
	assert.Equal(t, 1, r.tasks.Pending())

	t.Run("completion removes exactly once", func(t *testing.T) {
		rec.reset()
		r.handle(event{kind: evAttackDue, attackID: st.ID})
		assert.Empty(t, r.attacks)
		done := rec.ofType(OutAttackComplete)
		require.Len(t, done, 1)
		assert.JSONEq(t, `1700000000000`, string(done[0]))
		assert.Equal(t, 0, r.tasks.Pending())

		r.handle(event{kind: evAttackDue, attackID: st.ID})
		assert.Len(t, rec.ofType(OutAttackComplete), 1)
		assert.Equal(t, int64(1), r.metrics.AttacksCompleted)
	})
}

func TestAttackIDsAreUnique(t *testing.T) {
	r, _ := newTestRoom(t)
	connect(r, "a")
	for i := 0; i < 3; i++ {
		send(r, "a", LaunchRequest{Cells: []Cell{{i, i, 0}}})
	}
	require.Len(t, r.attacks, 3)
	assert.Less(t, r.attacks[0].ID, r.attacks[1].ID)
	assert.Less(t, r.attacks[1].ID, r.attacks[2].ID)
	assert.Equal(t, 3, r.tasks.Pending())
}

func TestCancelAttack(t *testing.T) {
	r, _ := newTestRoom(t)
	owner := connect(r, "owner")
	connect(r, "other")
	send(r, "owner", LaunchRequest{Cells: []Cell{{2, 2, 0}}})
	id := r.attacks[0].ID
	owner.reset()

	send(r, "other", CancelAttackRequest{AttackID: id})
	assert.Len(t, r.attacks, 1, "only the creator may cancel")
	assert.Empty(t, owner.ofType(OutAttackComplete))

	send(r, "owner", CancelAttackRequest{AttackID: id})
	assert.Empty(t, r.attacks)
	assert.Len(t, owner.ofType(OutAttackComplete), 1)
	assert.Equal(t, 0, r.tasks.Pending())

	// 已经投递的到期事件不会造成第二次移除
	r.handle(event{kind: evAttackDue, attackID: id})
	assert.Len(t, owner.ofType(OutAttackComplete), 1)
}

func TestSavedAttacks(t *testing.T) {
	r, _ := newTestRoom(t)
	a := connect(r, "a")
	b := connect(r, "b")
	a.reset()
	b.reset()

	send(r, "a", SaveAttackRequest{Name: "line", Cells: []Cell{{0, 0, 0}, {1, 0, 1}}})
	require.Len(t, r.saved, 1)
	for _, rec := range []*recorder{a, b} {
		lists := rec.ofType(OutSavedAttacksUpdate)
		require.Len(t, lists, 1)
		var saved []SavedAttack
		require.NoError(t, json.Unmarshal(lists[0], &saved))
		require.Len(t, saved, 1)
		assert.Equal(t, "line", saved[0].Name)
		assert.NotEmpty(t, saved[0].ID)
	}

	send(r, "a", LaunchRequest{Cells: r.saved[0].Cells})
	assert.Len(t, r.saved, 1, "launching keeps the saved pattern")

	a.reset()
	b.reset()
	send(r, "b", SavedAttacksQuery{})
	assert.Len(t, a.ofType(OutSavedAttacksUpdate), 1, "explicit request is broadcast to everyone")
	assert.Len(t, b.ofType(OutSavedAttacksUpdate), 1)
}

func TestPresetsSeedSavedAttacks(t *testing.T) {
	presets := []SavedAttack{{ID: "p1", Name: "Cross", Cells: []Cell{{1, 1, 0}}, CreatedBy: "preset"}}
	r := NewRoom("seeded", config.Defaults(), presets)
	t.Cleanup(r.Close)
	rec := connect(r, "a")
	lists := rec.ofType(OutSavedAttacksUpdate)
	require.Len(t, lists, 1)
	var saved []SavedAttack
	require.NoError(t, json.Unmarshal(lists[0], &saved))
	assert.Equal(t, presets, saved)
}

// 真实定时器：缩短时序后验证完成消息不早于总时长
func TestAttackCompletesAfterTotalDuration(t *testing.T) {
	cfg := config.Defaults()
	cfg.Game.PhaseInterval = 20 * time.Millisecond
	cfg.Game.WarningWindow = 10 * time.Millisecond
	cfg.Game.EffectWindow = 30 * time.Millisecond
	cfg.Game.SweepInterval = 5 * time.Millisecond
	r := NewRoom("timed", cfg, nil)
	r.StartTicker()
	defer r.Close()

	sink := newChanSender()
	require.True(t, r.Connect("a", sink))
	start := time.Now()
	require.True(t, r.OnInput("a", LaunchRequest{Cells: []Cell{{0, 0, 0}, {1, 1, 1}}}))

	msg := sink.waitFor(t, OutAttackComplete, 2*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.NotEmpty(t, msg)
	assert.Equal(t, 0, r.tasks.Pending())
}
