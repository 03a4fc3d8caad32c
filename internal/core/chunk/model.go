package chunk

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// NameLayout 直播分片文件名中的时间格式
const NameLayout = "20060102_150405"

const (
	ext        = ".mp4"
	tempPrefix = "temp_"
)

var (
	ErrNotFound    = errors.New("chunk not found")
	ErrUndersized  = errors.New("chunk undersized")
	ErrInvalidName = errors.New("invalid chunk name")
)

// Chunk 一个已经写入完成的视频文件
type Chunk struct {
	Path      string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Stem 去掉扩展名的文件名
func (c Chunk) Stem() string {
	return strings.TrimSuffix(c.Name, filepath.Ext(c.Name))
}

// LiveName 直播分片的正式文件名
func LiveName(t time.Time) string {
	return t.Format(NameLayout) + ext
}

// TempName 录制过程中使用的临时文件名，不会被读取方看到
func TempName(t time.Time) string {
	return tempPrefix + LiveName(t)
}

// ParseLiveName 解析文件名中的时间，使用本地时区
func ParseLiveName(name string) (time.Time, error) {
	stem := strings.TrimSuffix(filepath.Base(name), ext)
	return time.ParseInLocation(NameLayout, stem, time.Local)
}

// isLiveFile 正式分片，排除临时文件
func isLiveFile(name string) bool {
	return strings.HasSuffix(name, ext) && !strings.HasPrefix(name, tempPrefix)
}
