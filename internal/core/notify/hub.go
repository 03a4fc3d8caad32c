// Package notify 将事件广播给所有在线订阅者
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/conc"
)

var (
	ErrHubClosed       = errors.New("hub is closed")
	ErrObserverExists  = errors.New("observer id already exists")
	ErrObserverUnknown = errors.New("observer id not found")
)

// Observer 订阅者，Send 返回错误即视为断开
type Observer interface {
	ID() string
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Broadcaster 生产事件的一方只依赖广播能力
type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message) int
}

type Stats struct {
	Observers int    `json:"observers"`
	Broadcast uint64 `json:"broadcast"`
	Sent      uint64 `json:"sent"`
	Pruned    uint64 `json:"pruned"`
}

// Hub 扇出广播，投递失败的订阅者立即移除，不重试
type Hub struct {
	observers    conc.Map[string, Observer]
	writeTimeout time.Duration
	closed       atomic.Bool
	log          *slog.Logger

	broadcast, sent, pruned atomic.Uint64
}

var _ Broadcaster = (*Hub)(nil)

// NewHub writeTimeout 为单个订阅者单次投递的上限
func NewHub(writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{writeTimeout: writeTimeout, log: slog.With("core", "notify")}
}

func (h *Hub) Subscribe(o Observer) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if _, loaded := h.observers.LoadOrStore(o.ID(), o); loaded {
		return ErrObserverExists
	}
	h.log.Info("observer subscribed", "id", o.ID(), "total", h.Len())
	return nil
}

// Unsubscribe 移除并关闭订阅者
func (h *Hub) Unsubscribe(id string) error {
	o, ok := h.observers.Load(id)
	if !ok {
		return ErrObserverUnknown
	}
	h.observers.Delete(id)
	_ = o.Close()
	h.log.Info("observer unsubscribed", "id", id, "total", h.Len())
	return nil
}

// Broadcast 并发投递给每个订阅者，返回成功数量
// 每个订阅者的投递互不影响，慢订阅者最多占用 writeTimeout
func (h *Hub) Broadcast(ctx context.Context, msg Message) int {
	if h.closed.Load() {
		return 0
	}
	h.broadcast.Add(1)

	var (
		wg     sync.WaitGroup
		ok     atomic.Int32
		failed conc.Map[string, error]
	)
	h.observers.Range(func(id string, o Observer) bool {
		wg.Go(func() {
			sctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			defer cancel()
			if err := o.Send(sctx, msg); err != nil {
				failed.Store(id, err)
				return
			}
			ok.Add(1)
		})
		return true
	})
	wg.Wait()

	failed.Range(func(id string, err error) bool {
		h.log.Warn("observer delivery failed", "id", id, "type", msg.Type, "err", err)
		if h.Unsubscribe(id) == nil {
			h.pruned.Add(1)
		}
		return true
	})
	n := int(ok.Load())
	h.sent.Add(uint64(n))
	return n
}

// Len 当前订阅者数量
func (h *Hub) Len() int {
	var n int
	h.observers.Range(func(string, Observer) bool {
		n++
		return true
	})
	return n
}

// CountPrefix ID 以 prefix 开头的订阅者数量
func (h *Hub) CountPrefix(prefix string) int {
	var n int
	h.observers.Range(func(id string, _ Observer) bool {
		if strings.HasPrefix(id, prefix) {
			n++
		}
		return true
	})
	return n
}

func (h *Hub) Stats() Stats {
	return Stats{
		Observers: h.Len(),
		Broadcast: h.broadcast.Load(),
		Sent:      h.sent.Load(),
		Pruned:    h.pruned.Load(),
	}
}

// Close 关闭所有订阅者，之后的订阅与广播都被拒绝
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.observers.Range(func(id string, o Observer) bool {
		h.observers.Delete(id)
		_ = o.Close()
		return true
	})
}
