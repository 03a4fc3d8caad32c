package chunk

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/ixugo/goddd/pkg/conc"
)

// EvictExcess 数量超过 maxCount 时从最旧的开始删除，直到数量等于 maxCount
// 返回被删除的分片
func (s *Store) EvictExcess(maxCount int) ([]Chunk, error) {
	if maxCount < 0 {
		maxCount = 0
	}
	s.m.Lock()
	defer s.m.Unlock()

	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	excess := len(entries) - maxCount
	if excess <= 0 {
		return nil, nil
	}

	removed := make([]Chunk, 0, excess)
	var freedBytes int64
	for _, e := range entries[:excess] {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to delete chunk", "name", e.Name, "err", err)
			continue
		}
		removed = append(removed, e.Chunk)
		freedBytes += e.Size
	}
	s.log.Info("chunk eviction completed",
		"max_count", maxCount,
		"chunks_deleted", len(removed),
		"freed_bytes", freedBytes,
	)
	return removed, nil
}

// StartCleanupWorker 定时淘汰，补偿录制循环之外遗留的文件
// 启动时先执行一次，阻塞直到 ctx 结束
func (s *Store) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	s.log.Info("chunk cleanup worker started", "max_count", s.maxCount, "dir", s.dir, "interval", interval)
	s.runCleanup()
	conc.Timer(ctx, interval, interval, s.runCleanup)
}

func (s *Store) runCleanup() {
	if _, err := s.EvictExcess(s.maxCount); err != nil {
		s.log.Warn("chunk cleanup", "err", err)
	}
	if usage, err := s.Usage(); err == nil && usage.UsedPercent > 95 {
		s.log.Warn("chunk disk almost full", "used_percent", usage.UsedPercent, "free", usage.Free)
	}
}
