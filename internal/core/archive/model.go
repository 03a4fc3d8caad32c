package archive

import (
	"strings"
	"time"
)

// Mode 提问时提交给推理服务的素材
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
	ModeImage Mode = "image"
)

// FileLayout 结果文件名中的时间格式
const FileLayout = "20060102_150405"

var (
	audioWords = []string{"say", "said", "speak", "talk", "audio", "sound", "voice", "hear"}
	videoWords = []string{"move", "movement", "action", "activity", "happen", "doing"}
)

// Route 按问题中的关键词选择素材，音频优先于视频，其余使用截图
func Route(question string) Mode {
	q := strings.ToLower(question)
	for _, w := range audioWords {
		if strings.Contains(q, w) {
			return ModeAudio
		}
	}
	for _, w := range videoWords {
		if strings.Contains(q, w) {
			return ModeVideo
		}
	}
	return ModeImage
}

// Result 结果索引，完整内容在 JSON 文件中
type Result struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Filename   string    `gorm:"index;notNull;default:''" json:"filename"`
	Mode       string    `gorm:"notNull;default:''" json:"mode"`
	Question   string    `gorm:"notNull;default:''" json:"question"`
	Answer     string    `gorm:"type:text" json:"answer"`
	Video      string    `gorm:"notNull;default:''" json:"video"`
	Screenshot string    `gorm:"notNull;default:''" json:"screenshot"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (*Result) TableName() string {
	return "results"
}

// Record 写入结果文件的内容
type Record struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Video      string    `json:"video"`
	Screenshot string    `json:"screenshot"`
	Timestamp  time.Time `json:"timestamp"`
	SavedAt    time.Time `json:"saved_at"`
}
