package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/inference"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/ixugo/goddd/pkg/conc"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

const wsObserverPrefix = "ws:"

// NotifyAPI 事件推送与推理服务探测
type NotifyAPI struct {
	hub          *notify.Hub
	ai           *inference.Adapter
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

func NewNotifyAPI(cfg *conf.Bootstrap, hub *notify.Hub, ai *inference.Adapter) NotifyAPI {
	ping := cfg.Notify.PingInterval.Duration()
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return NotifyAPI{
		hub:          hub,
		ai:           ai,
		pingInterval: ping,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

func registerNotify(g gin.IRouter, api NotifyAPI, handler ...gin.HandlerFunc) {
	g.GET("/ws/chunks", append(handler, api.serveWS)...)
	g.GET("/api/test-inference", append(handler, web.WrapH(api.testInference))...)
}

// wsObserver 写操作串行化，gorilla 连接不支持并发写
type wsObserver struct {
	id   string
	conn *websocket.Conn
	m    sync.Mutex
	once sync.Once
}

var _ notify.Observer = (*wsObserver)(nil)

func newWSObserver(conn *websocket.Conn) *wsObserver {
	return &wsObserver{id: wsObserverPrefix + uuid.NewString(), conn: conn}
}

func (o *wsObserver) ID() string {
	return o.id
}

func (o *wsObserver) Send(ctx context.Context, msg notify.Message) error {
	o.m.Lock()
	defer o.m.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = o.conn.SetWriteDeadline(dl)
	}
	return o.conn.WriteJSON(msg)
}

func (o *wsObserver) ping(timeout time.Duration) error {
	o.m.Lock()
	defer o.m.Unlock()
	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (o *wsObserver) Close() error {
	var err error
	o.once.Do(func() {
		err = o.conn.Close()
	})
	return err
}

// serveWS 客户端只接收事件，发来的消息被丢弃
// 读失败、心跳失败或投递失败都会结束连接
func (a NotifyAPI) serveWS(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "websocket upgrade", "err", err)
		return
	}
	o := newWSObserver(conn)
	if err := a.hub.Subscribe(o); err != nil {
		_ = o.Close()
		return
	}
	defer func() {
		_ = a.hub.Unsubscribe(o.ID())
		_ = o.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conc.Timer(ctx, a.pingInterval, a.pingInterval, func() {
		if err := o.ping(5 * time.Second); err != nil {
			_ = o.Close()
		}
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type testInferenceOutput struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

func (a NotifyAPI) testInference(c *gin.Context, _ *struct{}) (testInferenceOutput, error) {
	text, err := a.ai.Ping(c.Request.Context())
	if err != nil {
		return testInferenceOutput{}, reason.ErrServer.SetMsg("inference service unavailable: " + err.Error())
	}
	return testInferenceOutput{Status: "success", Response: text}, nil
}
