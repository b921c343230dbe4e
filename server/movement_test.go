package server

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveCost(t *testing.T) {
	assert.Equal(t, 0.0, MoveCost(2, 2, 2, 2))
	assert.Equal(t, 1.0, MoveCost(2, 2, 3, 2))
	assert.Equal(t, 5.0, MoveCost(0, 0, 3, 4))
	assert.InDelta(t, math.Sqrt2, MoveCost(1, 1, 2, 2), 1e-12)
}

func TestRequestMove(t *testing.T) {
	t.Run("accepted move spends points and starts cooldown", func(t *testing.T) {
		r, clk := newTestRoom(t)
		rec := joinAt(r, "a", 5, 5)
		rec.reset()

		require.True(t, r.requestMove("a", 7, 5))
		p := r.Players["a"]
		assert.Equal(t, 7, p.X)
		assert.Equal(t, 5, p.Y)
		assert.Equal(t, 3.0, p.MovementPoints)
		require.NotNil(t, p.CooldownAt)
		assert.Equal(t, clk.Now(), *p.CooldownAt)

		players := rec.lastPlayers(t)
		require.Len(t, players, 1)
		assert.Equal(t, 7, players[0].X)
		assert.Equal(t, 3.0, players[0].MovementPoints)
		require.NotNil(t, players[0].MovementCooldownTimestamp)
		assert.Equal(t, clk.Now().UnixMilli(), *players[0].MovementCooldownTimestamp)
	})

	t.Run("move costing more than remaining points is rejected silently", func(t *testing.T) {
		r, _ := newTestRoom(t)
		rec := joinAt(r, "a", 5, 5)
		require.True(t, r.requestMove("a", 8, 5)) // 剩余 2
		rec.reset()

		assert.False(t, r.requestMove("a", 8, 8))
		p := r.Players["a"]
		assert.Equal(t, 8, p.X)
		assert.Equal(t, 5, p.Y)
		assert.Equal(t, 2.0, p.MovementPoints)
		assert.Empty(t, rec.msgs, "rejection must not broadcast")
	})

	t.Run("cumulative cost between regenerations never exceeds speed", func(t *testing.T) {
		r, clk := newTestRoom(t)
		joinAt(r, "a", 0, 0)
		spent := 0.0
		x := 0
		for i := 0; i < 10; i++ {
			clk.Advance(100 * time.Millisecond)
			if r.requestMove("a", x+1, 0) {
				x++
				spent++
			}
		}
		assert.Equal(t, 5.0, spent)
		assert.Equal(t, 5, r.Players["a"].X)
		assert.Equal(t, 0.0, r.Players["a"].MovementPoints)
	})

	t.Run("fractional diagonal costs are preserved", func(t *testing.T) {
		r, _ := newTestRoom(t)
		joinAt(r, "a", 0, 0)
		require.True(t, r.requestMove("a", 1, 1))
		require.True(t, r.requestMove("a", 2, 2))
		require.True(t, r.requestMove("a", 3, 3))
		assert.InDelta(t, 5-3*math.Sqrt2, r.Players["a"].MovementPoints, 1e-9)
		// 剩余约 0.757，不足以再走一格
		assert.False(t, r.requestMove("a", 4, 3))
	})

	t.Run("budget regenerates only after the full cooldown window", func(t *testing.T) {
		r, clk := newTestRoom(t)
		joinAt(r, "a", 0, 0)
		require.True(t, r.requestMove("a", 5, 0))

		clk.Advance(5999 * time.Millisecond)
		assert.False(t, r.requestMove("a", 6, 0))

		clk.Advance(time.Millisecond)
		assert.True(t, r.requestMove("a", 6, 0))
		assert.Equal(t, 4.0, r.Players["a"].MovementPoints)
	})

	t.Run("every accepted move restarts the window", func(t *testing.T) {
		r, clk := newTestRoom(t)
		joinAt(r, "a", 0, 0)
		require.True(t, r.requestMove("a", 1, 0))
		clk.Advance(4 * time.Second)
		require.True(t, r.requestMove("a", 2, 0))
		clk.Advance(4 * time.Second)
		// 距第一次移动 8s，但距最近一次只有 4s，不恢复
		require.True(t, r.requestMove("a", 3, 0))
		assert.Equal(t, 2.0, r.Players["a"].MovementPoints)
	})

	t.Run("targets outside the grid are rejected", func(t *testing.T) {
		r, _ := newTestRoom(t)
		joinAt(r, "a", 0, 0)
		assert.False(t, r.requestMove("a", -1, 0))
		assert.False(t, r.requestMove("a", 0, 15))
		assert.Equal(t, 5.0, r.Players["a"].MovementPoints)
	})

	t.Run("unknown session is a no-op", func(t *testing.T) {
		r, _ := newTestRoom(t)
		rec := connect(r, "watcher")
		rec.reset()
		assert.False(t, r.requestMove("ghost", 1, 1))
		assert.Empty(t, rec.msgs)
	})
}

func TestSweepCooldowns(t *testing.T) {
	r, clk := newTestRoom(t)
	rec := joinAt(r, "a", 0, 0)
	joinAt(r, "b", 3, 3)
	require.True(t, r.requestMove("a", 4, 0))
	rec.reset()

	clk.Advance(3 * time.Second)
	r.Tick()
	assert.Empty(t, rec.ofType(OutPlayersUpdate), "still on cooldown")

	clk.Advance(3 * time.Second)
	r.Tick()
	updates := rec.ofType(OutPlayersUpdate)
	require.Len(t, updates, 1)
	a := r.Players["a"]
	assert.Equal(t, 5.0, a.MovementPoints)
	assert.Nil(t, a.CooldownAt)
	assert.Nil(t, rec.lastPlayers(t)[0].MovementCooldownTimestamp)

	rec.reset()
	clk.Advance(time.Second)
	r.Tick()
	assert.Empty(t, rec.ofType(OutPlayersUpdate), "nothing changed, nothing sent")
}

func TestSetSpeed(t *testing.T) {
	window := 6 * time.Second
	now := time.Unix(100, 0)

	t.Run("clamps to range", func(t *testing.T) {
		p := &Player{Speed: 5, MovementPoints: 5}
		setSpeed(p, 42, now, window)
		assert.Equal(t, MaxSpeed, p.Speed)
		setSpeed(p, 0, now, window)
		assert.Equal(t, MinSpeed, p.Speed)
		assert.Equal(t, 1.0, p.MovementPoints)
	})

	t.Run("off cooldown refills to the new speed", func(t *testing.T) {
		p := &Player{Speed: 5, MovementPoints: 5}
		setSpeed(p, 8, now, window)
		assert.Equal(t, 8.0, p.MovementPoints)
	})

	t.Run("on cooldown keeps points within the new speed", func(t *testing.T) {
		last := now.Add(-time.Second)
		p := &Player{Speed: 8, MovementPoints: 6, CooldownAt: &last}
		setSpeed(p, 10, now, window)
		assert.Equal(t, 6.0, p.MovementPoints)
		setSpeed(p, 3, now, window)
		assert.Equal(t, 3.0, p.MovementPoints)
		assert.NotNil(t, p.CooldownAt)
	})

	t.Run("speed update through the room broadcasts", func(t *testing.T) {
		r, _ := newTestRoom(t)
		rec := joinAt(r, "a", 0, 0)
		rec.reset()
		speed := 9
		send(r, "a", TokenRequest{Speed: &speed})
		players := rec.lastPlayers(t)
		assert.Equal(t, 9, players[0].Speed)
		assert.Equal(t, 9.0, players[0].MovementPoints)
	})
}
