package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gowvp/vigil/internal/core/chunk"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrInvalidTime   = errors.New("invalid time")
	ErrScreenshot    = errors.New("screenshot extraction failed")
)

// ChunkSource 查找直播分片
type ChunkSource interface {
	Latest() (chunk.Chunk, error)
	NearestTo(time.Time) (chunk.Chunk, error)
}

// Snapshotter 从视频中截取一帧
type Snapshotter interface {
	Thumbnail(src, dst string) error
}

// Analyzer 推理服务，返回模型的 JSON 文本
type Analyzer interface {
	AnalyzeVideo(ctx context.Context, path, question string) (string, error)
	AnalyzeImage(ctx context.Context, path, question string) (string, error)
}

type AskInput struct {
	Question string `json:"question"`
	// Time 为 "last" 或空时取最新分片，否则取时间最接近的分片
	Time string `json:"time"`
}

type AskOutput struct {
	ID         int64     `json:"id"`
	Mode       Mode      `json:"mode"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Video      string    `json:"video"`
	Screenshot string    `json:"screenshot"`
	Timestamp  time.Time `json:"timestamp"`
	ResultFile string    `json:"result_file"`
}

// Asker 针对直播分片提问
type Asker struct {
	chunks   ChunkSource
	snap     Snapshotter
	ai       Analyzer
	archive  Core
	frameDir string
	now      func() time.Time
	log      *slog.Logger
}

func NewAsker(chunks ChunkSource, snap Snapshotter, ai Analyzer, archive Core, frameDir string) *Asker {
	return &Asker{
		chunks:   chunks,
		snap:     snap,
		ai:       ai,
		archive:  archive,
		frameDir: frameDir,
		now:      time.Now,
		log:      slog.With("core", "ask"),
	}
}

// ParseTime 解析提问中的时间，"last" 与空字符串返回零值
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "last" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, s)
}

func (a *Asker) resolve(at time.Time) (chunk.Chunk, error) {
	if at.IsZero() {
		return a.chunks.Latest()
	}
	return a.chunks.NearestTo(at)
}

// Ask mode 为空时按问题关键词路由
func (a *Asker) Ask(ctx context.Context, mode Mode, in AskInput) (*AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	at, err := ParseTime(in.Time)
	if err != nil {
		return nil, err
	}
	c, err := a.resolve(at)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.frameDir, 0o755); err != nil {
		return nil, err
	}
	shot := filepath.Join(a.frameDir, c.Stem()+".jpg")
	if err := a.snap.Thumbnail(c.Path, shot); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScreenshot, err)
	}

	if mode == "" {
		mode = Route(question)
	}
	var answer string
	switch mode {
	case ModeImage:
		answer, err = a.ai.AnalyzeImage(ctx, shot, question)
	default:
		answer, err = a.ai.AnalyzeVideo(ctx, c.Path, question)
	}
	if err != nil {
		return nil, err
	}
	a.log.InfoContext(ctx, "question answered", "mode", mode, "chunk", c.Name)

	now := a.now()
	out := AskOutput{
		Mode:       mode,
		Question:   question,
		Answer:     answer,
		Video:      c.Path,
		Screenshot: shot,
		Timestamp:  now,
	}
	res, err := a.archive.Save(ctx, mode, Record{
		Question:   question,
		Answer:     answer,
		Video:      c.Path,
		Screenshot: shot,
		Timestamp:  now,
		SavedAt:    now,
	})
	if err != nil {
		// 归档失败不影响回答
		a.log.ErrorContext(ctx, "archive result", "err", err)
		return &out, nil
	}
	out.ID = res.ID
	out.ResultFile = res.Filename
	return &out, nil
}
