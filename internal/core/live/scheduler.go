// Package live 持续从直播源录制固定时长的分片
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gowvp/vigil/internal/core/capture"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/gowvp/vigil/pkg/ffwork"
)

var ErrNoSource = errors.New("live source is not configured")

type Config struct {
	SourceURL     string
	ChunkDuration time.Duration
	// Grace ffmpeg 超时 = ChunkDuration + Grace
	Grace time.Duration
	// ErrorBackoff 一次录制失败后等待多久再开始下一次
	ErrorBackoff time.Duration
}

type Stats struct {
	Running   bool      `json:"running"`
	SourceURL string    `json:"source_url"`
	Captured  uint64    `json:"captured"`
	Failed    uint64    `json:"failed"`
	LastChunk string    `json:"last_chunk"`
	LastAt    time.Time `json:"last_at"`
}

// Scheduler 状态只有运行与停止，Start/Stop 都是幂等的
type Scheduler struct {
	arb   *capture.Arbiter
	ff    chunk.Transcoder
	store *chunk.Store
	hub   notify.Broadcaster
	now   func() time.Time
	log   *slog.Logger

	m       sync.Mutex
	cfg     Config
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	captured, failed atomic.Uint64
	last             atomic.Pointer[chunk.Chunk]
}

func NewScheduler(cfg Config, arb *capture.Arbiter, ff chunk.Transcoder, store *chunk.Store, hub notify.Broadcaster) *Scheduler {
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = 5 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &Scheduler{
		cfg:   cfg,
		arb:   arb,
		ff:    ff,
		store: store,
		hub:   hub,
		now:   time.Now,
		log:   slog.With("core", "live"),
	}
}

// Start 开始循环录制，已经在运行时直接返回
func (s *Scheduler) Start() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.running {
		return nil
	}
	if s.cfg.SourceURL == "" {
		return ErrNoSource
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.cfg, s.done)
	s.log.Info("live capture started", "source", s.cfg.SourceURL, "chunk_duration", s.cfg.ChunkDuration)
	return nil
}

// Stop 停止循环，正在进行的录制被中断并丢弃
func (s *Scheduler) Stop() {
	s.m.Lock()
	defer s.m.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.log.Info("live capture stopped")
}

// Wait 等待录制协程退出
func (s *Scheduler) Wait(ctx context.Context) error {
	s.m.Lock()
	done := s.done
	s.m.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSource 切换直播源，运行中时先停止再用新地址启动
func (s *Scheduler) SetSource(ctx context.Context, url string) error {
	s.m.Lock()
	wasRunning := s.running
	s.m.Unlock()

	s.Stop()
	if err := s.Wait(ctx); err != nil {
		return err
	}

	s.m.Lock()
	s.cfg.SourceURL = url
	s.m.Unlock()
	s.log.InfoContext(ctx, "live source updated", "source", url)

	if !wasRunning {
		return nil
	}
	return s.Start()
}

// ChunkDuration 单个分片的录制时长
func (s *Scheduler) ChunkDuration() time.Duration {
	s.m.Lock()
	defer s.m.Unlock()
	return s.cfg.ChunkDuration
}

func (s *Scheduler) Running() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.running
}

func (s *Scheduler) Stats() Stats {
	s.m.Lock()
	out := Stats{Running: s.running, SourceURL: s.cfg.SourceURL}
	s.m.Unlock()
	out.Captured = s.captured.Load()
	out.Failed = s.failed.Load()
	if c := s.last.Load(); c != nil {
		out.LastChunk = c.Name
		out.LastAt = c.CreatedAt
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, cfg Config, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		err := s.captureOnce(ctx, cfg)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.failed.Add(1)
		s.log.Error("live capture failed", "err", err)
		select {
		case <-time.After(cfg.ErrorBackoff):
		case <-ctx.Done():
			return
		}
	}
}

// captureOnce 持有转码资源完成一次录制
// 输出先写入临时文件，校验通过后改名，读取方看不到未完成的分片
func (s *Scheduler) captureOnce(ctx context.Context, cfg Config) error {
	return s.arb.Do(ctx, func(ctx context.Context) error {
		ts := s.now()
		dir := s.store.Dir()
		temp := filepath.Join(dir, chunk.TempName(ts))
		final := filepath.Join(dir, chunk.LiveName(ts))

		s.log.Debug("chunk capture started", "at", ts.Format(time.TimeOnly))
		err := s.ff.Run(ctx, cfg.ChunkDuration+cfg.Grace, ffwork.LiveArgs(cfg.SourceURL, cfg.ChunkDuration, temp)...)
		if err != nil {
			_ = os.Remove(temp)
			return fmt.Errorf("capture: %w", err)
		}
		if _, err := s.store.Validate(temp); err != nil {
			_ = os.Remove(temp)
			return err
		}
		if err := os.Rename(temp, final); err != nil {
			_ = os.Remove(temp)
			return fmt.Errorf("rename chunk: %w", err)
		}

		c := chunk.Chunk{Path: final, CreatedAt: ts}
		if err := s.store.Register(&c); err != nil {
			return err
		}
		s.captured.Add(1)
		s.last.Store(&c)

		if _, err := s.store.EvictExcess(s.store.MaxCount()); err != nil {
			s.log.Warn("evict chunks", "err", err)
		}
		s.hub.Broadcast(context.WithoutCancel(ctx), notify.NewChunkMessage(notify.NewChunkData{
			Filename: c.Name,
			Size:     c.Size,
			Created:  c.CreatedAt,
		}))
		return nil
	})
}
