package api

import (
	"expvar"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/web"
)

var startRuntime = time.Now()

func setupRouter(r *gin.Engine, uc *Usecase) {
	r.Use(
		// 格式化输出到控制台，然后记录到日志
		gin.CustomRecovery(func(c *gin.Context, err any) {
			slog.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		web.Metrics(),
		web.Logger(
			web.IgnoreMethod(http.MethodOptions),
			web.IgnorePrefix("/ws"),
			web.IgnorePrefix("/files"),
			web.IgnorePrefix("/chunks/index.m3u8"),
		),
	)

	r.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Accept", "Content-Length", "Content-Type", "Range", "Accept-Language",
			"Origin", "Authorization", "Referer", "User-Agent",
			"Accept-Encoding", "Cache-Control", "Pragma", "X-Requested-With",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(_ string) bool {
			return true
		},
	}))

	r.GET("/", web.WrapH(uc.getRoot))
	r.GET("/health", web.WrapH(uc.getHealth))
	r.GET("/app/metrics/api", web.WrapH(uc.getMetricsAPI))

	// 视频与截图体积大，已压缩的内容不再 gzip
	files := r.Group("/files")
	files.Static("/chunks", uc.Conf.Capture.ChunkDir)
	files.Static("/frames", uc.Conf.Alert.FrameDir)
	files.Static("/segments", uc.Conf.Alert.SegmentDir)
	results := r.Group("/files/results", gzip.Gzip(gzip.DefaultCompression))
	results.Static("/", uc.Conf.Archive.ResultDir)

	registerLive(r, uc.LiveAPI)
	registerChunk(r, uc.ChunkAPI)
	registerAsk(r, uc.AskAPI)
	registerAlert(r, uc.AlertAPI)
	registerNotify(r, uc.NotifyAPI)
}

type getRootOutput struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	Streaming bool   `json:"streaming"`
}

func (uc *Usecase) getRoot(_ *gin.Context, _ *struct{}) (getRootOutput, error) {
	return getRootOutput{
		Message:   "video monitoring api",
		Status:    "running",
		Streaming: uc.LiveAPI.live.Running(),
	}, nil
}

type getHealthOutput struct {
	Version   string    `json:"version"`
	StartAt   time.Time `json:"start_at"`
	GitBranch string    `json:"git_branch"`
	GitHash   string    `json:"git_hash"`
}

func (uc *Usecase) getHealth(_ *gin.Context, _ *struct{}) (getHealthOutput, error) {
	return getHealthOutput{
		Version:   uc.Conf.BuildVersion,
		GitBranch: expvarString("git_branch"),
		GitHash:   expvarString("git_hash"),
		StartAt:   startRuntime,
	}, nil
}

func expvarString(name string) string {
	v := expvar.Get(name)
	if v == nil {
		return ""
	}
	return strings.Trim(v.String(), `"`)
}

type getMetricsAPIOutput struct {
	RealTimeRequests int64  `json:"real_time_requests"` // 实时请求数
	TotalRequests    int64  `json:"total_requests"`     // 总请求数
	TotalResponses   int64  `json:"total_responses"`    // 总响应数
	RequestTop10     []KV   `json:"request_top10"`      // 请求TOP10
	StatusCodeTop10  []KV   `json:"status_code_top10"`  // 状态码TOP10
	Goroutines       int    `json:"goroutines"`         // 协程数量
	NumGC            uint32 `json:"num_gc"`             // gc 次数
	SysAlloc         uint64 `json:"sys_alloc"`          // 内存占用
	StartAt          string `json:"start_at"`           // 运行时间
}

func (uc *Usecase) getMetricsAPI(_ *gin.Context, _ *struct{}) (*getMetricsAPIOutput, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	out := getMetricsAPIOutput{
		Goroutines: runtime.NumGoroutine(),
		NumGC:      stats.NumGC,
		SysAlloc:   stats.Sys,
		StartAt:    startRuntime.Format(time.DateTime),
	}
	// 指标由 web.Metrics 中间件注册
	if v, ok := expvar.Get("request").(*expvar.Int); ok {
		out.RealTimeRequests = v.Value()
	}
	if v, ok := expvar.Get("requests").(*expvar.Int); ok {
		out.TotalRequests = v.Value()
	}
	if v, ok := expvar.Get("responses").(*expvar.Int); ok {
		out.TotalResponses = v.Value()
	}
	if m, ok := expvar.Get("requestURLs").(*expvar.Map); ok {
		out.RequestTop10 = sortExpvarMap(m, 10)
	}
	if m, ok := expvar.Get("statusCodes").(*expvar.Map); ok {
		out.StatusCodeTop10 = sortExpvarMap(m, 10)
	}
	return &out, nil
}

type KV struct {
	Key   string
	Value int64
}

func sortExpvarMap(data *expvar.Map, top int) []KV {
	kvs := make([]KV, 0, 8)
	data.Do(func(kv expvar.KeyValue) {
		v, ok := kv.Value.(*expvar.Int)
		if !ok {
			return
		}
		kvs = append(kvs, KV{Key: kv.Key, Value: v.Value()})
	})
	sort.Slice(kvs, func(i, j int) bool {
		return kvs[i].Value > kvs[j].Value
	})
	return kvs[:min(top, len(kvs))]
}
