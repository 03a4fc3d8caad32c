package chunk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gowvp/vigil/internal/core/capture"
	"github.com/gowvp/vigil/pkg/ffwork"
)

// Transcoder 外部转码进程
type Transcoder interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) error
}

// Thumbnailer 从视频中抽取一张图片
type Thumbnailer interface {
	Thumbnail(src, dst string) error
}

type SplitterConfig struct {
	SegmentDir string
	FrameDir   string
	// MinSize 输出不大于该值视为失败
	MinSize int64
	// Grace ffmpeg 超时 = 切片时长 + Grace
	Grace time.Duration
}

// Splitter 从源视频截取任意区间，所有转码都经过 Arbiter
type Splitter struct {
	arb   *capture.Arbiter
	ff    Transcoder
	thumb Thumbnailer
	cfg   SplitterConfig
	log   *slog.Logger
}

func NewSplitter(arb *capture.Arbiter, ff Transcoder, thumb Thumbnailer, cfg SplitterConfig) *Splitter {
	if cfg.Grace <= 0 {
		cfg.Grace = time.Minute
	}
	return &Splitter{
		arb:   arb,
		ff:    ff,
		thumb: thumb,
		cfg:   cfg,
		log:   slog.With("core", "splitter"),
	}
}

func (s *Splitter) SegmentDir() string {
	return s.cfg.SegmentDir
}

// Extract 截取 [start, start+duration) 写入 SegmentDir/name
// 失败时删除残留文件并返回错误，由调用方决定跳过还是终止
func (s *Splitter) Extract(ctx context.Context, src string, start, duration time.Duration, name string) (Chunk, error) {
	if duration <= 0 {
		return Chunk{}, fmt.Errorf("extract %s: invalid duration %s", name, duration)
	}
	if err := os.MkdirAll(s.cfg.SegmentDir, 0o755); err != nil {
		return Chunk{}, err
	}
	out := filepath.Join(s.cfg.SegmentDir, name)

	// 排队可以取消，转码开始后会跑完
	err := s.arb.Do(ctx, func(ctx context.Context) error {
		return s.ff.Run(context.WithoutCancel(ctx), duration+s.cfg.Grace, ffwork.ClipArgs(src, start, duration, out)...)
	})
	if err != nil {
		_ = os.Remove(out)
		return Chunk{}, fmt.Errorf("extract %s: %w", name, err)
	}

	fi, err := os.Stat(out)
	if err != nil {
		return Chunk{}, fmt.Errorf("extract %s: %w", name, ErrNotFound)
	}
	if fi.Size() <= s.cfg.MinSize {
		_ = os.Remove(out)
		return Chunk{}, fmt.Errorf("extract %s: %w size[%d]", name, ErrUndersized, fi.Size())
	}
	s.log.Info("segment created", "name", name, "size", fi.Size(), "start", start, "duration", duration)
	return Chunk{Path: out, Name: name, Size: fi.Size(), CreatedAt: fi.ModTime()}, nil
}

// Thumbnail 取中间帧写入 FrameDir/name，失败时返回 false
func (s *Splitter) Thumbnail(c Chunk, name string) (string, bool) {
	if s.thumb == nil {
		return "", false
	}
	dst := filepath.Join(s.cfg.FrameDir, name)
	if err := s.thumb.Thumbnail(c.Path, dst); err != nil {
		s.log.Warn("thumbnail failed", "chunk", c.Name, "err", err)
		return "", false
	}
	return dst, true
}

// RemoveGlob 删除 SegmentDir 中匹配 pattern 的文件，返回删除数量
func (s *Splitter) RemoveGlob(pattern string) int {
	matches, err := filepath.Glob(filepath.Join(s.cfg.SegmentDir, pattern))
	if err != nil {
		return 0
	}
	var n int
	for _, p := range matches {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove segment", "path", p, "err", err)
			continue
		}
		n++
	}
	return n
}
