package alert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/stretchr/testify/require"
)

type fakeSplitter struct {
	dir     string
	failIdx map[int]bool
	m       sync.Mutex
	removed []string
	// queued 非空时模拟排队等待转码资源，直到 ctx 取消
	queued chan struct{}
}

func (f *fakeSplitter) Extract(ctx context.Context, _ string, start, _ time.Duration, name string) (chunk.Chunk, error) {
	if f.queued != nil {
		f.queued <- struct{}{}
		<-ctx.Done()
		return chunk.Chunk{}, ctx.Err()
	}
	idx := int(start / (10 * time.Second))
	if f.failIdx[idx] {
		return chunk.Chunk{}, chunk.ErrUndersized
	}
	p := filepath.Join(f.dir, name)
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return chunk.Chunk{}, err
	}
	return chunk.Chunk{Path: p, Name: name, Size: 5}, nil
}

func (f *fakeSplitter) Thumbnail(_ chunk.Chunk, name string) (string, bool) {
	return filepath.Join("frames", name), true
}

func (f *fakeSplitter) RemoveGlob(pattern string) int {
	f.m.Lock()
	f.removed = append(f.removed, pattern)
	f.m.Unlock()
	matches, _ := filepath.Glob(filepath.Join(f.dir, pattern))
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return len(matches)
}

// fakeAnalyzer 根据提示词中的 "chunk N of M" 返回结果
type fakeAnalyzer struct {
	reply   func(chunkNo int) string
	calls   atomic.Int32
	started chan int
	block   chan struct{}
}

func (f *fakeAnalyzer) AnalyzeSegment(_ context.Context, _, prompt string) string {
	f.calls.Add(1)
	var n, total int
	i := strings.Index(prompt, "chunk ")
	_, _ = fmt.Sscanf(prompt[i:], "chunk %d of %d", &n, &total)
	if f.started != nil {
		f.started <- n
	}
	if f.block != nil {
		<-f.block
	}
	return f.reply(n)
}

type fakeProber struct {
	d   time.Duration
	err error
}

func (f fakeProber) Duration(string) (time.Duration, error) { return f.d, f.err }

type fakeHub struct {
	m    sync.Mutex
	msgs []notify.Message
}

func (f *fakeHub) Broadcast(_ context.Context, msg notify.Message) int {
	f.m.Lock()
	defer f.m.Unlock()
	f.msgs = append(f.msgs, msg)
	return 1
}

func (f *fakeHub) messages() []notify.Message {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]notify.Message(nil), f.msgs...)
}

type env struct {
	core     Core
	splitter *fakeSplitter
	analyzer *fakeAnalyzer
	hub      *fakeHub
}

func newEnv(t *testing.T, total time.Duration, reply func(int) string) *env {
	t.Helper()
	dir := t.TempDir()
	videoDir := filepath.Join(dir, "server")
	segDir := filepath.Join(videoDir, "temp_chunks")
	require.NoError(t, os.MkdirAll(segDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(videoDir, "1.mp4"), []byte("src"), 0o644))

	e := env{
		splitter: &fakeSplitter{dir: segDir},
		analyzer: &fakeAnalyzer{reply: reply},
		hub:      &fakeHub{},
	}
	e.core = NewCore(Config{
		VideoDir:        videoDir,
		Threshold:       0.7,
		StopGrace:       20 * time.Millisecond,
		DefaultInterval: 10 * time.Second,
	}, e.splitter, e.analyzer, fakeProber{d: total}, e.hub)
	return &e
}

func notDetected(int) string {
	return `{"detected":false,"confidence":0.1,"summary":"nothing","answer":"no"}`
}

func waitDone(t *testing.T, c Core, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx, id))
}

func TestMonitorTriggersOnce(t *testing.T) {
	e := newEnv(t, 25*time.Second, func(n int) string {
		if n == 2 {
			return "```json\n{\"detected\":true,\"confidence\":0.85,\"summary\":\"fall\",\"answer\":\"at 0:14\"}\n```"
		}
		return notDetected(n)
	})
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "a person falls"})
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, a.Interval)
	waitDone(t, e.core, a.ID)

	got, err := e.core.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, got.State)
	require.True(t, got.Triggered)

	dets, err := e.core.Detections(a.ID)
	require.NoError(t, err)
	require.Len(t, dets, 3)
	for i, d := range dets {
		require.Equal(t, i+1, d.ChunkIndex)
		require.Equal(t, a.ID, d.AlertID)
	}
	require.Equal(t, "0:20 - 0:25", dets[2].VideoTimeRange)
	require.InDelta(t, 5.0, dets[2].ChunkDuration, 1e-9)

	msgs := e.hub.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, notify.TypeAlertTriggered, msgs[0].Type)
	data := msgs[0].Data.(notify.AlertTriggeredData)
	require.Equal(t, a.ID, data.AlertID)
	require.Equal(t, 0.85, data.Confidence)
	require.Equal(t, "0:10 - 0:20", data.VideoTimestamp)
	require.Equal(t, "at 0:14", data.Details)
	require.Equal(t, "1.mp4", data.VideoName)
	require.NotEmpty(t, data.VideoPath)
	require.NotEmpty(t, data.Snapshot)
}

func TestMonitorThresholdIsExclusive(t *testing.T) {
	e := newEnv(t, 10*time.Second, func(int) string {
		return `{"detected":true,"confidence":0.7,"summary":"s","answer":"a"}`
	})
	a, err := e.core.Create(context.Background(), CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)

	got, _ := e.core.Get(a.ID)
	require.False(t, got.Triggered)
	require.Empty(t, e.hub.messages())
}

func TestMonitorSkipsFailedSegments(t *testing.T) {
	e := newEnv(t, 30*time.Second, func(n int) string {
		if n == 3 {
			return "42"
		}
		return notDetected(n)
	})
	e.splitter.failIdx = map[int]bool{1: true}

	a, err := e.core.Create(context.Background(), CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)

	dets, err := e.core.Detections(a.ID)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, 1, dets[0].ChunkIndex)
	require.EqualValues(t, 2, e.analyzer.calls.Load())
}

func TestMonitorTerminalFailures(t *testing.T) {
	e := newEnv(t, 0, notDetected)
	_, err := e.core.Create(context.Background(), CreateInput{VideoID: "404", Description: "x"})
	require.ErrorIs(t, err, ErrVideoNotFound)
	_, err = e.core.Create(context.Background(), CreateInput{VideoID: "../1", Description: "x"})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = e.core.Create(context.Background(), CreateInput{VideoID: "1", Description: " "})
	require.ErrorIs(t, err, ErrBadRequest)

	// 时长读取失败直接结束
	e.core.prober = fakeProber{err: errors.New("broken")}
	a, err := e.core.Create(context.Background(), CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)
	got, _ := e.core.Get(a.ID)
	require.Equal(t, StateCompleted, got.State)
	require.Zero(t, e.analyzer.calls.Load())
}

func TestMonitorPanicCompletes(t *testing.T) {
	e := newEnv(t, 20*time.Second, func(int) string { panic("unexpected") })
	a, err := e.core.Create(context.Background(), CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)
	got, _ := e.core.Get(a.ID)
	require.Equal(t, StateCompleted, got.State)
}

func TestStopMidRun(t *testing.T) {
	e := newEnv(t, 60*time.Second, notDetected)
	e.analyzer.started = make(chan int, 10)
	e.analyzer.block = make(chan struct{})
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	require.Equal(t, 1, <-e.analyzer.started)

	rec, ok := e.core.records.Load(a.ID)
	require.True(t, ok)
	rec.m.Lock()
	done := rec.done
	rec.m.Unlock()

	stopped := make(chan error, 1)
	go func() { stopped <- e.core.Stop(ctx, a.ID) }()
	require.Eventually(t, func() bool {
		got, err := e.core.Get(a.ID)
		return err != nil || got.State == StateCancelled
	}, time.Second, 5*time.Millisecond)
	close(e.analyzer.block)

	require.NoError(t, <-stopped)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not exit")
	}

	_, err = e.core.Get(a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = e.core.Detections(a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualValues(t, 1, e.analyzer.calls.Load(), "no segment may start after stop")
	require.Empty(t, rec.detections, "in-flight segment must not be recorded after stop")
	require.Contains(t, e.splitter.removed, segmentGlob(a.ID))

	left, _ := filepath.Glob(filepath.Join(e.splitter.dir, segmentGlob(a.ID)))
	require.Empty(t, left)
	require.ErrorIs(t, e.core.Stop(ctx, a.ID), ErrNotFound)
}

func TestRerunClearsDetections(t *testing.T) {
	var run atomic.Int32
	run.Store(1)
	e := newEnv(t, 30*time.Second, func(int) string {
		return fmt.Sprintf(`{"detected":false,"confidence":0,"summary":"run%d","answer":""}`, run.Load())
	})
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)

	run.Store(2)
	_, err = e.core.Rerun(ctx, a.ID)
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)

	dets, err := e.core.Detections(a.ID)
	require.NoError(t, err)
	require.Len(t, dets, 3)
	for _, d := range dets {
		require.Equal(t, "run2", d.Summary)
	}
	got, _ := e.core.Get(a.ID)
	require.Equal(t, StateCompleted, got.State)

	_, err = e.core.Rerun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStopWhileSegmentQueued(t *testing.T) {
	e := newEnv(t, 60*time.Second, notDetected)
	e.splitter.queued = make(chan struct{}, 1)
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	<-e.splitter.queued

	rec, ok := e.core.records.Load(a.ID)
	require.True(t, ok)
	rec.m.Lock()
	done := rec.done
	rec.m.Unlock()

	require.NoError(t, e.core.Stop(ctx, a.ID))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued segment blocked stop")
	}
	require.Zero(t, e.analyzer.calls.Load())
}

func TestShutdownWhileSegmentQueued(t *testing.T) {
	e := newEnv(t, 60*time.Second, notDetected)
	e.splitter.queued = make(chan struct{}, 1)
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	<-e.splitter.queued

	e.core.Shutdown()
	waitDone(t, e.core, a.ID)
	got, err := e.core.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, got.State)
}

func TestRerunDuringStopGrace(t *testing.T) {
	e := newEnv(t, 30*time.Second, notDetected)
	e.core.cfg.StopGrace = 200 * time.Millisecond
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a.ID)
	calls := e.analyzer.calls.Load()

	stopped := make(chan error, 1)
	go func() { stopped <- e.core.Stop(ctx, a.ID) }()
	require.Eventually(t, func() bool {
		got, err := e.core.Get(a.ID)
		return err == nil && got.State == StateCancelled
	}, time.Second, time.Millisecond)

	_, err = e.core.Rerun(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, e.core.Stop(ctx, a.ID), ErrNotFound)

	require.NoError(t, <-stopped)
	_, ok := e.core.records.Load(a.ID)
	require.False(t, ok)
	require.Equal(t, calls, e.analyzer.calls.Load(), "no monitor may start after stop")
}

func TestRerunWhileRunning(t *testing.T) {
	e := newEnv(t, 20*time.Second, notDetected)
	e.analyzer.started = make(chan int, 10)
	e.analyzer.block = make(chan struct{})
	ctx := context.Background()

	a, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	<-e.analyzer.started

	_, err = e.core.Rerun(ctx, a.ID)
	require.ErrorIs(t, err, ErrRunning)

	close(e.analyzer.block)
	waitDone(t, e.core, a.ID)
}

func TestListAndVideos(t *testing.T) {
	e := newEnv(t, 10*time.Second, notDetected)
	ctx := context.Background()
	a1, err := e.core.Create(ctx, CreateInput{VideoID: "1", Description: "x"})
	require.NoError(t, err)
	waitDone(t, e.core, a1.ID)

	require.Len(t, e.core.List(), 1)
	require.Len(t, e.core.ListByVideo("1"), 1)
	require.Empty(t, e.core.ListByVideo("2"))

	dir := e.core.cfg.VideoDir
	for _, name := range []string{"2.mp4", "abc.mp4", "3.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	videos, err := e.core.ListVideos()
	require.NoError(t, err)
	require.Equal(t, []string{"1.mp4", "2.mp4"}, videos)
}
