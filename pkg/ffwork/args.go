package ffwork

import (
	"strconv"
	"strings"
	"time"
)

func baseArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
	}
}

// LiveArgs 从直播源录制固定时长，输出 h264/aac
func LiveArgs(input string, duration time.Duration, output string) []string {
	args := baseArgs()
	if strings.HasPrefix(input, "rtsp://") || strings.HasPrefix(input, "rtsps://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", input,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-t", Seconds(duration),
		"-y", output,
	)
	return args
}

// ClipArgs 从文件截取 [start, start+duration) 并重新编码
// -ss 放在 -i 之前以便快速定位
func ClipArgs(input string, start, duration time.Duration, output string) []string {
	args := baseArgs()
	args = append(args,
		"-ss", Seconds(start),
		"-i", input,
		"-t", Seconds(duration),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-y", output,
	)
	return args
}

// Seconds 以秒为单位格式化，去掉多余的小数位
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
