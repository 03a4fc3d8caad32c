package alert

import (
	"errors"
	"time"
)

// State 告警任务状态
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

var (
	ErrNotFound      = errors.New("alert not found")
	ErrVideoNotFound = errors.New("video not found")
	ErrRunning       = errors.New("alert is running")
	ErrBadRequest    = errors.New("bad request")
)

// Alert 针对某个视频的自然语言检测条件
type Alert struct {
	ID          string        `json:"id"`
	VideoID     string        `json:"video_id"`
	Description string        `json:"alert_description"`
	Interval    time.Duration `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	State       State         `json:"status"`
	Triggered   bool          `json:"is_triggered"`
}

// IntervalSeconds 切片间隔（秒）
func (a Alert) IntervalSeconds() float64 {
	return a.Interval.Seconds()
}

// Detection 一个切片的分析结果，创建后不再修改
type Detection struct {
	ID             string    `json:"id"`
	AlertID        string    `json:"task_id"`
	ChunkIndex     int       `json:"chunk_index"` // 从 1 开始
	Detected       bool      `json:"detected"`
	Confidence     float64   `json:"confidence"`
	VideoTimeRange string    `json:"video_timestamp"`
	Summary        string    `json:"summary"`
	Details        string    `json:"details"`
	SnapshotPath   string    `json:"snapshot"`
	ChunkPath      string    `json:"video_path"`
	ChunkDuration  float64   `json:"chunk_duration"` // 秒
	CreatedAt      time.Time `json:"timestamp"`
}

// CreateInput 新建告警
type CreateInput struct {
	VideoID     string
	Description string
	Interval    time.Duration
}
