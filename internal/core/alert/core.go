package alert

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/ixugo/goddd/pkg/conc"
)

// Splitter 切片与截图
type Splitter interface {
	Extract(ctx context.Context, src string, start, duration time.Duration, name string) (chunk.Chunk, error)
	Thumbnail(c chunk.Chunk, name string) (string, bool)
	RemoveGlob(pattern string) int
}

// Analyzer 切片推理，返回未经清洗的文本
type Analyzer interface {
	AnalyzeSegment(ctx context.Context, path, prompt string) string
}

// DurationProber 读取视频时长
type DurationProber interface {
	Duration(path string) (time.Duration, error)
}

type Config struct {
	VideoDir        string
	Threshold       float64
	StopGrace       time.Duration
	DefaultInterval time.Duration
}

// record 一个告警的全部状态，所有字段由 m 保护
type record struct {
	m          sync.Mutex
	alert      Alert
	detections []Detection
	cancel     context.CancelFunc
	done       chan struct{}
	// run 每次启动递增，旧的监控协程不能写入新一轮的结果
	run uint64
	// stopped Stop 之后置位，记录即将删除，不能再启动监控
	stopped bool
}

// runningLocked 上一轮监控协程是否仍未退出
func (r *record) runningLocked() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *record) snapshot() Alert {
	r.m.Lock()
	defer r.m.Unlock()
	return r.alert
}

// Core 告警监控
type Core struct {
	cfg      Config
	records  *conc.Map[string, *record]
	splitter Splitter
	analyzer Analyzer
	prober   DurationProber
	hub      notify.Broadcaster
	log      *slog.Logger
}

// NewCore create business domain
func NewCore(cfg Config, splitter Splitter, analyzer Analyzer, prober DurationProber, hub notify.Broadcaster) Core {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 10 * time.Second
	}
	return Core{
		cfg:      cfg,
		records:  conc.NewMap[string, *record](),
		splitter: splitter,
		analyzer: analyzer,
		prober:   prober,
		hub:      hub,
		log:      slog.With("core", "alert"),
	}
}

// VideoPath 视频文件路径，videoID 不允许包含路径
func (c Core) VideoPath(videoID string) (string, error) {
	if videoID == "" || videoID != filepath.Base(videoID) || strings.HasPrefix(videoID, ".") {
		return "", fmt.Errorf("%w: video_id[%s]", ErrBadRequest, videoID)
	}
	p := filepath.Join(c.cfg.VideoDir, videoID+".mp4")
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}
	return p, nil
}

// ListVideos 视频目录下以数字开头的 mp4 文件
func (c Core) ListVideos() ([]string, error) {
	des, err := os.ReadDir(c.cfg.VideoDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".mp4") || name[0] < '0' || name[0] > '9' {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// Create 新建告警并立即开始监控
func (c Core) Create(ctx context.Context, in CreateInput) (Alert, error) {
	if strings.TrimSpace(in.Description) == "" {
		return Alert{}, fmt.Errorf("%w: alert_description is required", ErrBadRequest)
	}
	if in.Interval < 0 {
		return Alert{}, fmt.Errorf("%w: interval must be positive", ErrBadRequest)
	}
	if in.Interval == 0 {
		in.Interval = c.cfg.DefaultInterval
	}
	if _, err := c.VideoPath(in.VideoID); err != nil {
		return Alert{}, err
	}

	rec := record{alert: Alert{
		ID:          uuid.NewString(),
		VideoID:     in.VideoID,
		Description: in.Description,
		Interval:    in.Interval,
		CreatedAt:   time.Now(),
		State:       StatePending,
	}}
	c.records.Store(rec.alert.ID, &rec)
	c.log.InfoContext(ctx, "alert created", "alert_id", rec.alert.ID, "video_id", in.VideoID, "interval", in.Interval)

	c.start(&rec)
	return rec.snapshot(), nil
}

// start 启动监控协程，已经在运行或已被停止时什么也不做
func (c Core) start(rec *record) {
	rec.m.Lock()
	defer rec.m.Unlock()
	if rec.stopped || rec.runningLocked() {
		return
	}
	c.startLocked(rec)
}

// startLocked 调用方持有 rec.m 并已检查状态
func (c Core) startLocked(rec *record) {
	ctx, cancel := context.WithCancel(context.Background())
	rec.run++
	rec.cancel = cancel
	rec.done = make(chan struct{})
	rec.alert.State = StateRunning

	go c.monitor(ctx, rec, rec.run, rec.alert, rec.done)
}

// Get Query a single object
func (c Core) Get(id string) (Alert, error) {
	rec, ok := c.records.Load(id)
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.snapshot(), nil
}

// List 按创建时间排序
func (c Core) List() []Alert {
	out := make([]Alert, 0, 8)
	c.records.Range(func(_ string, rec *record) bool {
		out = append(out, rec.snapshot())
		return true
	})
	slices.SortFunc(out, func(a, b Alert) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// ListByVideo 某个视频下的告警
func (c Core) ListByVideo(videoID string) []Alert {
	all := c.List()
	out := all[:0]
	for _, a := range all {
		if a.VideoID == videoID {
			out = append(out, a)
		}
	}
	return out
}

// Detections 按切片顺序返回副本
func (c Core) Detections(id string) ([]Detection, error) {
	rec, ok := c.records.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.m.Lock()
	defer rec.m.Unlock()
	return slices.Clone(rec.detections), nil
}

// Rerun 清空上一轮结果后重新监控，运行中的告警不能重跑
func (c Core) Rerun(ctx context.Context, id string) (Alert, error) {
	rec, ok := c.records.Load(id)
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.m.Lock()
	if rec.stopped {
		rec.m.Unlock()
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.runningLocked() {
		rec.m.Unlock()
		return Alert{}, fmt.Errorf("%w: %s", ErrRunning, id)
	}
	rec.detections = nil
	rec.alert.Triggered = false
	c.startLocked(rec)
	out := rec.alert
	rec.m.Unlock()

	c.log.InfoContext(ctx, "alert rerun", "alert_id", id)
	return out, nil
}

// Stop 取消监控并删除告警
// 等待一小段时间后清理该告警产生的切片，再从注册表移除
func (c Core) Stop(ctx context.Context, id string) error {
	rec, ok := c.records.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.m.Lock()
	if rec.stopped {
		rec.m.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.stopped = true
	if rec.cancel != nil {
		rec.cancel()
	}
	rec.alert.State = StateCancelled
	rec.m.Unlock()

	select {
	case <-time.After(c.cfg.StopGrace):
	case <-ctx.Done():
	}

	n := c.splitter.RemoveGlob(segmentGlob(id))
	c.records.Delete(id)
	c.log.InfoContext(ctx, "alert stopped", "alert_id", id, "segments_deleted", n)
	return nil
}

// Shutdown 取消所有运行中的监控，不删除记录
func (c Core) Shutdown() {
	c.records.Range(func(_ string, rec *record) bool {
		rec.m.Lock()
		if rec.cancel != nil {
			rec.cancel()
		}
		rec.m.Unlock()
		return true
	})
}

// Wait 等待当前一轮监控结束，用于测试与优雅退出
func (c Core) Wait(ctx context.Context, id string) error {
	rec, ok := c.records.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.m.Lock()
	done := rec.done
	rec.m.Unlock()
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
