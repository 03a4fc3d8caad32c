package alert

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gowvp/vigil/internal/core/inference"
	"github.com/gowvp/vigil/internal/core/notify"
)

// monitor 逐个切片分析视频，结束时无论原因都转为 completed
// 取消只在切片之间检查，正在处理的切片会完成
func (c Core) monitor(ctx context.Context, rec *record, run uint64, a Alert, done chan struct{}) {
	log := c.log.With("alert_id", a.ID, "video_id", a.VideoID)
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Error("alert monitor panic", "err", r, "stack", string(debug.Stack()))
		}
		rec.m.Lock()
		if rec.run == run && rec.alert.State == StateRunning {
			rec.alert.State = StateCompleted
		}
		rec.m.Unlock()
		if ctx.Err() != nil {
			// 取消后仍可能有切片在 Stop 清理之后才写完
			c.splitter.RemoveGlob(segmentGlob(a.ID))
		}
	}()

	src, err := c.VideoPath(a.VideoID)
	if err != nil {
		log.Error("video not found for alert", "err", err)
		return
	}
	total, err := c.prober.Duration(src)
	if err != nil {
		log.Error("read video duration", "err", err)
		return
	}
	count := SegmentCount(total, a.Interval)
	log.Info("alert monitoring started", "duration", total, "interval", a.Interval, "segments", count)

	var processed int
	for i := range count {
		if ctx.Err() != nil {
			log.Info("alert stopped by user", "processed", processed, "segments", count)
			return
		}
		seg := SegmentAt(i, total, a.Interval)
		c.processSegment(ctx, rec, run, a, src, seg, count)
		processed++
	}
	log.Info("alert completed", "segments", count)
}

// processSegment 单个切片失败只记录日志，不影响后续切片
func (c Core) processSegment(ctx context.Context, rec *record, run uint64, a Alert, src string, seg Segment, total int) {
	log := c.log.With("alert_id", a.ID, "chunk", seg.Index+1, "total", total)
	log.Info("processing segment", "start", seg.Start, "end", seg.End)

	// 排队等待转码时可以取消，开始处理后不受取消影响，只是不再记录结果
	ck, err := c.splitter.Extract(ctx, src, seg.Start, seg.Duration(), segmentName(a.ID, seg))
	if err != nil {
		if ctx.Err() != nil {
			log.Info("segment skipped after stop", "err", err)
			return
		}
		log.Error("failed to create segment", "err", err)
		return
	}
	work := context.WithoutCancel(ctx)
	snapshot, _ := c.splitter.Thumbnail(ck, thumbName(a.ID, seg))

	raw := c.analyzer.AnalyzeSegment(work, ck.Path, segmentPrompt(seg, total, a.Description))
	var result inference.DetectResult
	if err := inference.Decode(raw, &result); err != nil {
		log.Error("failed to parse segment result", "err", err)
		return
	}
	log.Info("segment analyzed", "detected", result.Detected, "confidence", fmt.Sprintf("%.2f", result.Confidence))

	det := Detection{
		ID:             uuid.NewString(),
		AlertID:        a.ID,
		ChunkIndex:     seg.Index + 1,
		Detected:       result.Detected,
		Confidence:     result.Confidence,
		VideoTimeRange: seg.TimeRange(),
		Summary:        result.Summary,
		Details:        result.Answer,
		SnapshotPath:   snapshot,
		ChunkPath:      ck.Path,
		ChunkDuration:  seg.Duration().Seconds(),
		CreatedAt:      time.Now(),
	}
	triggered := det.Detected && det.Confidence > c.cfg.Threshold

	rec.m.Lock()
	if rec.run != run || ctx.Err() != nil {
		rec.m.Unlock()
		return
	}
	rec.detections = append(rec.detections, det)
	if triggered {
		rec.alert.Triggered = true
	}
	rec.m.Unlock()

	if !triggered {
		return
	}
	log.Warn("alert triggered", "time_range", det.VideoTimeRange, "confidence", det.Confidence, "condition", a.Description)
	c.hub.Broadcast(work, notify.AlertTriggeredMessage(notify.AlertTriggeredData{
		AlertID:        a.ID,
		VideoID:        a.VideoID,
		VideoName:      a.VideoID + ".mp4",
		Description:    a.Description,
		Detected:       det.Detected,
		Confidence:     det.Confidence,
		Details:        det.Details,
		Summary:        det.Summary,
		Snapshot:       det.SnapshotPath,
		VideoPath:      det.ChunkPath,
		VideoTimestamp: det.VideoTimeRange,
		Timestamp:      det.CreatedAt,
	}))
}
