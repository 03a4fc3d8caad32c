// Package vidprobe 基于 opencv 读取视频元数据与关键帧
package vidprobe

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

var (
	ErrNotOpened = errors.New("video not opened")
	ErrNoFrame   = errors.New("no frame decoded")
	ErrNoFPS     = errors.New("invalid fps or frame count")
)

// Prober 无状态，可并发使用
type Prober struct {
	// Retries 抽帧失败时的重试次数
	Retries int
	// RetryWait 两次重试之间的等待
	RetryWait time.Duration
}

func New() Prober {
	return Prober{Retries: 1, RetryWait: time.Second}
}

func open(path string) (*gocv.VideoCapture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotOpened, path)
	}
	return vc, nil
}

// Duration 帧数 / 帧率
func (Prober) Duration(path string) (time.Duration, error) {
	vc, err := open(path)
	if err != nil {
		return 0, err
	}
	defer vc.Close()

	d, err := frameDuration(vc.Get(gocv.VideoCaptureFPS), vc.Get(gocv.VideoCaptureFrameCount))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", err, path)
	}
	return d, nil
}

func frameDuration(fps, frames float64) (time.Duration, error) {
	if fps <= 0 || frames <= 0 || math.IsNaN(fps) || math.IsNaN(frames) {
		return 0, fmt.Errorf("%w fps[%v] frames[%v]", ErrNoFPS, fps, frames)
	}
	return time.Duration(frames / fps * float64(time.Second)), nil
}

// Readable 能打开并且能解码出第一帧
func (Prober) Readable(path string) bool {
	vc, err := open(path)
	if err != nil {
		return false
	}
	defer vc.Close()

	img := gocv.NewMat()
	defer img.Close()
	return vc.Read(&img) && !img.Empty()
}

// Thumbnail 取中间帧写入 dst
func (p Prober) Thumbnail(src, dst string) error {
	var err error
	for i := 0; i <= p.Retries; i++ {
		if i > 0 {
			time.Sleep(p.RetryWait)
		}
		if err = p.thumbnail(src, dst); err == nil {
			return nil
		}
	}
	return err
}

func (Prober) thumbnail(src, dst string) error {
	vc, err := open(src)
	if err != nil {
		return err
	}
	defer vc.Close()

	total := int(vc.Get(gocv.VideoCaptureFrameCount))
	vc.Set(gocv.VideoCapturePosFrames, float64(max(0, total/2)))

	img := gocv.NewMat()
	defer img.Close()
	if !vc.Read(&img) || img.Empty() {
		return fmt.Errorf("%w: %s", ErrNoFrame, src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if !gocv.IMWrite(dst, img) {
		return fmt.Errorf("write %s failed", dst)
	}
	return nil
}
