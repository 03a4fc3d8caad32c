package live

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gowvp/vigil/internal/core/capture"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/stretchr/testify/require"
)

// fakeFF 前 n 次写出指定大小的文件，之后阻塞直到被取消
type fakeFF struct {
	m      sync.Mutex
	n      int
	size   int
	fail   error
	calls  int
	inputs []string
	arb    *capture.Arbiter
	// unheld 调用时未持有转码资源的次数
	unheld int
}

func (f *fakeFF) Run(ctx context.Context, _ time.Duration, args ...string) error {
	f.m.Lock()
	f.calls++
	call := f.calls
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			f.inputs = append(f.inputs, args[i+1])
		}
	}
	if f.arb != nil && f.arb.Active() != 1 {
		f.unheld++
	}
	f.m.Unlock()

	if call > f.n {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(args[len(args)-1], make([]byte, f.size), 0o644)
}

func (f *fakeFF) Calls() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls
}

type fakeHub struct {
	m    sync.Mutex
	msgs []notify.Message
}

func (h *fakeHub) Broadcast(_ context.Context, msg notify.Message) int {
	h.m.Lock()
	defer h.m.Unlock()
	h.msgs = append(h.msgs, msg)
	return 1
}

func (h *fakeHub) Len() int {
	h.m.Lock()
	defer h.m.Unlock()
	return len(h.msgs)
}

func newTestScheduler(t *testing.T, ff *fakeFF, maxCount int) (*Scheduler, *chunk.Store, *fakeHub) {
	t.Helper()
	store, err := chunk.NewStore(t.TempDir(), chunk.WithMaxCount(maxCount), chunk.WithMinSize(100))
	require.NoError(t, err)
	arb := capture.NewArbiter(1, 10*time.Millisecond)
	ff.arb = arb
	hub := &fakeHub{}
	s := NewScheduler(Config{
		SourceURL:     "rtsp://camera/stream",
		ChunkDuration: time.Second,
		ErrorBackoff:  10 * time.Millisecond,
	}, arb, ff, store, hub)

	// 每次录制的时间向后推一分钟，避免文件名冲突
	var (
		m    sync.Mutex
		base = time.Date(2025, 1, 2, 3, 4, 0, 0, time.Local)
	)
	s.now = func() time.Time {
		m.Lock()
		defer m.Unlock()
		base = base.Add(time.Minute)
		return base
	}
	return s, store, hub
}

func stopAndWait(t *testing.T, s *Scheduler) {
	t.Helper()
	s.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestCaptureLoop(t *testing.T) {
	ff := &fakeFF{n: 4, size: 200}
	s, store, hub := newTestScheduler(t, ff, 2)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return hub.Len() == 4 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, s)

	chunks, err := store.ListOrderedByAge()
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "20250102_030800.mp4", chunks[1].Name)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasPrefix(e.Name(), "temp_"), e.Name())
	}

	msg := hub.msgs[0]
	require.Equal(t, notify.TypeNewChunk, msg.Type)
	data := msg.Data.(notify.NewChunkData)
	require.Equal(t, "20250102_030500.mp4", data.Filename)
	require.EqualValues(t, 200, data.Size)

	require.Zero(t, ff.unheld)
	st := s.Stats()
	require.False(t, st.Running)
	require.EqualValues(t, 4, st.Captured)
	require.Equal(t, "20250102_030800.mp4", st.LastChunk)
}

func TestCaptureUndersized(t *testing.T) {
	ff := &fakeFF{n: 2, size: 100}
	s, store, hub := newTestScheduler(t, ff, 10)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return ff.Calls() > 2 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, s)

	require.Zero(t, hub.Len())
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
	require.EqualValues(t, 2, s.Stats().Failed)
}

func TestCaptureFailureBacksOff(t *testing.T) {
	ff := &fakeFF{n: 3, fail: errors.New("exit status 1")}
	s, store, hub := newTestScheduler(t, ff, 10)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return ff.Calls() > 3 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, s)

	require.Zero(t, hub.Len())
	chunks, err := store.ListOrderedByAge()
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestStartStopIdempotent(t *testing.T) {
	ff := &fakeFF{}
	s, _, _ := newTestScheduler(t, ff, 10)

	s.Stop()
	require.False(t, s.Running())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.True(t, s.Running())
	require.Eventually(t, func() bool { return ff.Calls() == 1 }, time.Second, 5*time.Millisecond)

	stopAndWait(t, s)
	s.Stop()
	require.False(t, s.Running())
	require.Equal(t, 1, ff.Calls())
}

func TestStartWithoutSource(t *testing.T) {
	ff := &fakeFF{}
	s, _, _ := newTestScheduler(t, ff, 10)
	s.cfg.SourceURL = ""
	require.ErrorIs(t, s.Start(), ErrNoSource)
	require.False(t, s.Running())
}

func TestSetSourceRestarts(t *testing.T) {
	ff := &fakeFF{}
	s, _, _ := newTestScheduler(t, ff, 10)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return ff.Calls() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.SetSource(ctx, "rtsp://camera/other"))
	require.True(t, s.Running())
	require.Eventually(t, func() bool { return ff.Calls() == 2 }, time.Second, 5*time.Millisecond)
	stopAndWait(t, s)

	ff.m.Lock()
	defer ff.m.Unlock()
	require.Equal(t, []string{"rtsp://camera/stream", "rtsp://camera/other"}, ff.inputs)

	// 停止状态下只修改地址
	require.NoError(t, s.SetSource(ctx, "rtsp://camera/third"))
	require.False(t, s.Running())
	require.Equal(t, "rtsp://camera/third", s.Stats().SourceURL)
}
