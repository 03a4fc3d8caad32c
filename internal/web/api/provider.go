package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/alert"
	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/gowvp/vigil/internal/core/archive/store/archivedb"
	"github.com/gowvp/vigil/internal/core/capture"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/inference"
	"github.com/gowvp/vigil/internal/core/live"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/gowvp/vigil/internal/rpc"
	"github.com/gowvp/vigil/pkg/ffwork"
	"github.com/gowvp/vigil/pkg/vidprobe"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewArbiter, NewTranscoder, vidprobe.New,
	NewChunkStore, NewSplitter,
	NewHub,
	NewLiveScheduler, NewLiveAPI,
	NewChunkAPI,
	NewAIClient, NewInferenceAdapter,
	NewAlertCore, NewAlertAPI,
	NewArchiveCore, NewAsker, NewAskAPI,
	NewNotifyAPI,
)

type Usecase struct {
	Conf *conf.Bootstrap
	DB   *gorm.DB

	LiveAPI   LiveAPI
	ChunkAPI  ChunkAPI
	AskAPI    AskAPI
	AlertAPI  AlertAPI
	NotifyAPI NotifyAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"msg": "not found"})
	})
	setupRouter(g, uc)
	return g
}

// NewArbiter 全进程共享一个转码名额，直播录制与告警切片互斥
func NewArbiter(cfg *conf.Bootstrap) *capture.Arbiter {
	return capture.NewArbiter(1, cfg.Capture.PollInterval.Duration())
}

func NewTranscoder(cfg *conf.Bootstrap) *ffwork.Runner {
	return ffwork.NewRunner(cfg.Capture.FFmpegPath)
}

// NewChunkStore 直播分片目录，并启动定期淘汰
func NewChunkStore(cfg *conf.Bootstrap, probe vidprobe.Prober) (*chunk.Store, func(), error) {
	c := cfg.Capture
	store, err := chunk.NewStore(c.ChunkDir,
		chunk.WithMaxCount(c.MaxChunks),
		chunk.WithMinSize(c.MinChunkBytes),
		chunk.WithQuiescence(c.Quiescence.Duration()),
		chunk.WithProber(probe),
	)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	go store.StartCleanupWorker(ctx, time.Minute)
	return store, cancel, nil
}

func NewSplitter(cfg *conf.Bootstrap, arb *capture.Arbiter, ff *ffwork.Runner, probe vidprobe.Prober) *chunk.Splitter {
	return chunk.NewSplitter(arb, ff, probe, chunk.SplitterConfig{
		SegmentDir: cfg.Alert.SegmentDir,
		FrameDir:   cfg.Alert.FrameDir,
		MinSize:    cfg.Alert.MinSegmentBytes,
		Grace:      cfg.Alert.ExtractGrace.Duration(),
	})
}

// NewHub 推送中心，配置了 broker 时挂载常驻的 MQTT 订阅者
func NewHub(cfg *conf.Bootstrap) (*notify.Hub, func()) {
	hub := notify.NewHub(cfg.Notify.WriteTimeout.Duration())
	if m := cfg.Notify.MQTT; m.Broker != "" {
		sink, err := notify.NewMQTTSink(notify.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			Username: m.Username,
			Password: m.Password,
			QoS:      m.QoS,
		})
		if err != nil {
			slog.Error("mqtt sink disabled", "err", err)
		} else if err := hub.Subscribe(sink); err != nil {
			slog.Error("subscribe mqtt sink", "err", err)
		}
	}
	return hub, hub.Close
}

// NewLiveScheduler 配置了 AutoStart 时立即开始录制
func NewLiveScheduler(cfg *conf.Bootstrap, arb *capture.Arbiter, ff *ffwork.Runner, store *chunk.Store, hub *notify.Hub) (*live.Scheduler, func()) {
	c := cfg.Capture
	s := live.NewScheduler(live.Config{
		SourceURL:     c.SourceURL,
		ChunkDuration: c.ChunkDuration.Duration(),
		Grace:         c.Grace.Duration(),
		ErrorBackoff:  c.ErrorBackoff.Duration(),
	}, arb, ff, store, hub)
	if c.AutoStart {
		if err := s.Start(); err != nil {
			slog.Error("live capture auto start", "err", err)
		}
	}
	return s, func() {
		s.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Wait(ctx)
	}
}

func NewAIClient(cfg *conf.Bootstrap) *rpc.AIClient {
	c := cfg.Inference
	return rpc.NewAIClient(c.BaseURL, c.APIKey, c.Timeout.Duration())
}

func NewInferenceAdapter(cfg *conf.Bootstrap, cli *rpc.AIClient) *inference.Adapter {
	c := cfg.Inference
	return inference.NewAdapter(cli, inference.Config{
		Model:           c.Model,
		SegmentModel:    c.SegmentModel,
		MaxVideoBytes:   c.MaxVideoBytes,
		MaxImageBytes:   c.MaxImageBytes,
		MaxSegmentBytes: cfg.Alert.MaxSegmentBytes,
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
	})
}

func NewAlertCore(cfg *conf.Bootstrap, splitter *chunk.Splitter, ai *inference.Adapter, probe vidprobe.Prober, hub *notify.Hub) (alert.Core, func()) {
	c := cfg.Alert
	core := alert.NewCore(alert.Config{
		VideoDir:        c.VideoDir,
		Threshold:       c.Threshold,
		StopGrace:       c.StopGrace.Duration(),
		DefaultInterval: c.DefaultInterval.Duration(),
	}, splitter, ai, probe, hub)
	return core, core.Shutdown
}

// NewArchiveCore 问答结果归档，索引写入数据库
func NewArchiveCore(cfg *conf.Bootstrap, db *gorm.DB) (archive.Core, error) {
	store := archivedb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
	return archive.NewCore(store, cfg.Archive.ResultDir)
}

func NewAsker(cfg *conf.Bootstrap, store *chunk.Store, probe vidprobe.Prober, ai *inference.Adapter, core archive.Core) *archive.Asker {
	return archive.NewAsker(store, probe, ai, core, cfg.Alert.FrameDir)
}
