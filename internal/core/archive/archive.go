// Package archive 保存提问结果，文件为准，数据库只做索引
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Storer data persistence
type Storer interface {
	Add(context.Context, *Result) error
	Find(ctx context.Context, limit, offset int) ([]*Result, int64, error)
	Get(ctx context.Context, id int64) (*Result, error)
}

// Core 结果归档
type Core struct {
	store Storer
	dir   string
	log   *slog.Logger
}

func NewCore(store Storer, dir string) (Core, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Core{}, fmt.Errorf("create result dir: %w", err)
	}
	return Core{store: store, dir: dir, log: slog.With("core", "archive")}, nil
}

func (c Core) Dir() string {
	return c.dir
}

// Save 写入结果文件后登记索引
// 索引写入失败只记录日志，文件已经落盘
func (c Core) Save(ctx context.Context, mode Mode, rec Record) (*Result, error) {
	name := rec.SavedAt.Format(FileLayout) + ".json"
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return nil, fmt.Errorf("write result: %w", err)
	}

	out := Result{
		Filename:   name,
		Mode:       string(mode),
		Question:   rec.Question,
		Answer:     rec.Answer,
		Video:      rec.Video,
		Screenshot: rec.Screenshot,
		Timestamp:  rec.Timestamp,
		CreatedAt:  rec.SavedAt,
	}
	if c.store != nil {
		if err := c.store.Add(ctx, &out); err != nil {
			c.log.ErrorContext(ctx, "index result", "file", name, "err", err)
		}
	}
	c.log.InfoContext(ctx, "result saved", "file", name, "mode", mode)
	return &out, nil
}

// Find 按保存时间倒序分页
func (c Core) Find(ctx context.Context, limit, offset int) ([]*Result, int64, error) {
	limit = min(max(limit, 1), 100)
	return c.store.Find(ctx, limit, max(offset, 0))
}

// Get 查询索引
func (c Core) Get(ctx context.Context, id int64) (*Result, error) {
	return c.store.Get(ctx, id)
}

// Load 读取结果文件，name 只能是目录内的文件名
func (c Core) Load(name string) (*Record, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid result name %q", name)
	}
	b, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &out, nil
}
