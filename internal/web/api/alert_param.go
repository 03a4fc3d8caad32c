package api

import (
	"time"

	"github.com/gowvp/vigil/internal/core/alert"
)

type createAlertInput struct {
	VideoID         string  `json:"video_id"`
	Description     string  `json:"alert_description"`
	IntervalSeconds float64 `json:"interval_seconds"` // 为 0 时使用默认间隔
}

type alertOutput struct {
	ID              string    `json:"id"`
	VideoID         string    `json:"video_id"`
	Description     string    `json:"alert_description"`
	IntervalSeconds float64   `json:"interval_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	Status          string    `json:"status" copier:"State"`
	IsTriggered     bool      `json:"is_triggered" copier:"Triggered"`
}

type taskOutput struct {
	alertOutput
	Detections []alert.Detection `json:"detections"`
}

// debugDetectionsOutput 不存在的告警也返回 200，exists 为 false
type debugDetectionsOutput struct {
	AlertID    string            `json:"alert_id"`
	Exists     bool              `json:"exists"`
	Detections []alert.Detection `json:"detections"`
	Completed  bool              `json:"completed"`
	Triggered  bool              `json:"triggered"`
}

type findTasksInput struct {
	VideoID string `form:"video_id"`
}
