package notify

import "time"

const (
	TypeNewChunk       = "new_chunk"
	TypeAlertTriggered = "alert_triggered"
)

// Message 推送给订阅者的事件，不持久化
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewChunkData 直播分片录制完成
type NewChunkData struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}

// AlertTriggeredData 告警命中
type AlertTriggeredData struct {
	AlertID        string    `json:"alert_id"`
	VideoID        string    `json:"video_id"`
	VideoName      string    `json:"video_name"`
	Description    string    `json:"description"`
	Detected       bool      `json:"detected"`
	Confidence     float64   `json:"confidence"`
	Details        string    `json:"details"`
	Summary        string    `json:"summary"`
	Snapshot       string    `json:"snapshot"`
	VideoPath      string    `json:"video_path"`
	VideoTimestamp string    `json:"video_timestamp"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewChunkMessage(d NewChunkData) Message {
	return Message{Type: TypeNewChunk, Data: d}
}

func AlertTriggeredMessage(d AlertTriggeredData) Message {
	return Message{Type: TypeAlertTriggered, Data: d}
}
