package alert

import (
	"fmt"
	"time"
)

// Segment 监控过程中逐个生成的视频区间 [Start, End)
type Segment struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// Duration 区间长度
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// TimeRange 形如 1:05 - 1:15
func (s Segment) TimeRange() string {
	return FormatClock(s.Start) + " - " + FormatClock(s.End)
}

// SegmentCount ceil(total / interval)
func SegmentCount(total, interval time.Duration) int {
	if total <= 0 || interval <= 0 {
		return 0
	}
	n := int(total / interval)
	if total%interval > 0 {
		n++
	}
	return n
}

// SegmentAt 第 index 个区间，最后一个区间截止到 total
func SegmentAt(index int, total, interval time.Duration) Segment {
	start := time.Duration(index) * interval
	return Segment{
		Index: index,
		Start: start,
		End:   min(start+interval, total),
	}
}

// FormatClock 分:秒，秒补零到两位，分钟不补零
func FormatClock(d time.Duration) string {
	sec := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func segmentName(alertID string, s Segment) string {
	return fmt.Sprintf("alert_%s_chunk_%d_%ds.mp4", alertID, s.Index, int(s.Start/time.Second))
}

func thumbName(alertID string, s Segment) string {
	return fmt.Sprintf("alert_%s_chunk_%d_thumb.jpg", alertID, s.Index)
}

func segmentGlob(alertID string) string {
	return fmt.Sprintf("alert_%s_*.mp4", alertID)
}
