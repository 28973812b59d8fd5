package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Edge, n int) []Edge {
	out := make([]Edge, 0, n)
	for i := 0; i < n; i++ {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-time.After(time.Second):
			return out
		}
	}
	return out
}

func diffs(edges []Edge) []uint32 {
	var out []uint32
	for i := 1; i < len(edges); i++ {
		out = append(out, TickDiff(edges[i-1].Tick, edges[i].Tick))
	}
	return out
}

func TestTickDiffWraps(t *testing.T) {
	assert.Equal(t, uint32(300), TickDiff(1000, 1300))
	assert.Equal(t, uint32(0x110), TickDiff(0xffffff00, 0x10))
	assert.Equal(t, uint32(1), TickDiff(0xffffffff, 0))
}

func TestLoopbackInjectCode(t *testing.T) {
	l := NewLoopback(LoopbackOptions{})
	edges, err := l.WatchEdges(17, 100*time.Microsecond)
	require.NoError(t, err)
	assert.True(t, l.Watching(17))
	assert.Equal(t, 100*time.Microsecond, l.GlitchFilter(17))

	l.InjectCode(17, 560, 560, 1690)
	got := drain(edges, 4)
	require.Len(t, got, 4)
	assert.Equal(t, []uint32{560, 560, 1690}, diffs(got))
	assert.Equal(t, []int{0, 1, 0, 1}, []int{got[0].Level, got[1].Level, got[2].Level, got[3].Level})

	require.NoError(t, l.UnwatchEdges(17))
	assert.False(t, l.Watching(17))
	_, open := <-edges
	assert.False(t, open)
}

func TestLoopbackEcho(t *testing.T) {
	l := NewLoopback(LoopbackOptions{Echo: true, EchoPin: 17})
	edges, err := l.WatchEdges(17, 0)
	require.NoError(t, err)
	require.NoError(t, l.PrepareOutput(18))

	m := Mask(18)
	mark, err := l.CreateWave([]WaveStep{{On: m, Delay: 13}, {Off: m, Delay: 13}})
	require.NoError(t, err)
	space, err := l.CreateWave([]WaveStep{{Delay: 500}})
	require.NoError(t, err)

	require.NoError(t, l.ChainWaves(context.Background(), []WaveID{mark, space, mark, mark}))
	got := drain(edges, 4)
	assert.Equal(t, []uint32{26, 500, 52}, diffs(got))
	require.Len(t, l.Played(), 1)
	assert.Len(t, l.Played()[0], 7)

	require.NoError(t, l.DeleteWave(mark))
	require.NoError(t, l.DeleteWave(space))
	assert.Equal(t, 0, l.Waves())
	assert.Error(t, l.DeleteWave(space))
}

func TestLoopbackRealtime(t *testing.T) {
	l := NewLoopback(LoopbackOptions{Realtime: true})
	id, err := l.CreateWave([]WaveStep{{Delay: 20000}})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.ChainWaves(context.Background(), []WaveID{id}))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.ChainWaves(ctx, []WaveID{id}), context.Canceled)
}

func TestLoopbackClose(t *testing.T) {
	l := NewLoopback(LoopbackOptions{})
	edges, err := l.WatchEdges(4, 0)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	_, open := <-edges
	assert.False(t, open)
	_, err = l.WatchEdges(4, 0)
	assert.ErrorIs(t, err, ErrClosed)
}
