package ffwork

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

// ErrTimeout ffmpeg 在限定时间内没有退出
var ErrTimeout = errors.New("ffmpeg timeout")

type (
	// Runner 以子进程方式执行 ffmpeg，一次调用对应一个进程
	Runner struct {
		bin       string
		killAfter time.Duration

		m         sync.Mutex
		ffmpegLog *queue.CirQueue[string]
		stats     Stats
	}
	// Stats 运行统计
	Stats struct {
		Runs, Failures uint64
		LastRun        time.Time
		LastDuration   time.Duration
	}
	// ExitError 携带 ffmpeg 退出前的 stderr 尾部
	ExitError struct {
		Err error
		Log []string
	}
)

func (e *ExitError) Error() string {
	if len(e.Log) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Log[len(e.Log)-1])
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewRunner bin 为空时使用 PATH 中的 ffmpeg
func NewRunner(bin string) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Runner{
		bin:       bin,
		killAfter: 5 * time.Second,
		ffmpegLog: queue.NewCirQueue[string](100),
	}
}

// Run 执行 ffmpeg 并等待退出
// timeout 是整个进程的墙钟上限，超时后进程被杀死并返回 ErrTimeout
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.WaitDelay = r.killAfter
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.record(start, false)
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	lines := queue.NewCirQueue[string](20)
	r.readStderr(stderr, lines)

	err = cmd.Wait()
	r.record(start, err == nil)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}
	return &ExitError{Err: err, Log: lines.Range()}
}

// readStderr 读取 ffmpeg 的 stderr 输出用于日志记录
// ffmpeg 的警告和错误信息都会输出到 stderr
func (r *Runner) readStderr(stderr io.Reader, lines *queue.CirQueue[string]) {
	scan := bufio.NewScanner(stderr)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		lines.Push(line)
		r.m.Lock()
		r.ffmpegLog.Push(line)
		r.m.Unlock()
	}
}

func (r *Runner) record(start time.Time, ok bool) {
	r.m.Lock()
	defer r.m.Unlock()
	r.stats.Runs++
	if !ok {
		r.stats.Failures++
	}
	r.stats.LastRun = start
	r.stats.LastDuration = time.Since(start)
}

// Log 最近的 stderr 输出，跨多次调用
func (r *Runner) Log() []string {
	r.m.Lock()
	defer r.m.Unlock()
	return r.ffmpegLog.Range()
}

func (r *Runner) GetStats() Stats {
	r.m.Lock()
	defer r.m.Unlock()
	return r.stats
}
