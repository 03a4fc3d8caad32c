// Package capture 限制整个进程内同时运行的转码进程数量
package capture

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Arbiter 计数型资源守卫
// 等待方按固定间隔轮询，按排队顺序获得资源，有人排队时新来的调用方也要排队
type Arbiter struct {
	limit int
	poll  time.Duration

	m      sync.Mutex
	active int
	seq    uint64
	queue  []uint64
	log    *slog.Logger
}

// NewArbiter limit 小于 1 时按 1 处理
func NewArbiter(limit int, poll time.Duration) *Arbiter {
	if limit < 1 {
		limit = 1
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Arbiter{limit: limit, poll: poll, log: slog.With("core", "capture")}
}

// tryAcquire ticket 为 0 表示未排队，只有队列为空时才能直接获得
func (a *Arbiter) tryAcquire(ticket uint64) bool {
	a.m.Lock()
	defer a.m.Unlock()
	free := a.limit - a.active
	if free <= 0 {
		return false
	}
	if ticket == 0 {
		if len(a.queue) > 0 {
			return false
		}
	} else {
		i := slices.Index(a.queue, ticket)
		if i < 0 || i >= free {
			return false
		}
		a.queue = slices.Delete(a.queue, i, i+1)
	}
	a.active++
	return true
}

func (a *Arbiter) enqueue() uint64 {
	a.m.Lock()
	defer a.m.Unlock()
	a.seq++
	a.queue = append(a.queue, a.seq)
	return a.seq
}

func (a *Arbiter) leave(ticket uint64) {
	a.m.Lock()
	defer a.m.Unlock()
	if i := slices.Index(a.queue, ticket); i >= 0 {
		a.queue = slices.Delete(a.queue, i, i+1)
	}
}

// Acquire 阻塞直到获得资源，ctx 取消时退出队列并返回 ctx.Err()
func (a *Arbiter) Acquire(ctx context.Context) error {
	if a.tryAcquire(0) {
		return nil
	}
	ticket := a.enqueue()
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()
	waitStart := time.Now()
	for {
		select {
		case <-ctx.Done():
			a.leave(ticket)
			return ctx.Err()
		case <-ticker.C:
		}
		if a.tryAcquire(ticket) {
			a.log.Debug("capture acquired after wait", "wait", time.Since(waitStart))
			return nil
		}
	}
}

// Release 与 Acquire 成对调用
func (a *Arbiter) Release() {
	a.m.Lock()
	defer a.m.Unlock()
	if a.active == 0 {
		a.log.Warn("release without acquire")
		return
	}
	a.active--
}

// Do 持有资源执行 fn，fn 返回或 panic 时都会释放
func (a *Arbiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := a.Acquire(ctx); err != nil {
		return err
	}
	defer a.Release()
	return fn(ctx)
}

// Waiting 排队中的调用方数量
func (a *Arbiter) Waiting() int {
	a.m.Lock()
	defer a.m.Unlock()
	return len(a.queue)
}

// Active 当前持有者数量
func (a *Arbiter) Active() int {
	a.m.Lock()
	defer a.m.Unlock()
	return a.active
}
