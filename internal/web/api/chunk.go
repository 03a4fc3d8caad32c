package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/live"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/grafov/m3u8"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// ChunkAPI 直播分片查询
type ChunkAPI struct {
	store *chunk.Store
	live  *live.Scheduler
	hub   *notify.Hub
}

func NewChunkAPI(store *chunk.Store, s *live.Scheduler, hub *notify.Hub) ChunkAPI {
	return ChunkAPI{store: store, live: s, hub: hub}
}

func registerChunk(g gin.IRouter, api ChunkAPI, handler ...gin.HandlerFunc) {
	{
		group := g.Group("/chunks", handler...)
		group.GET("", web.WrapH(api.findChunks))
		group.GET("/latest", web.WrapH(api.latestChunk))
		// HLS 播放列表，按录制顺序串联当前保留的分片
		group.GET("/index.m3u8", api.playlist)
	}
	g.GET("/status", append(handler, web.WrapH(api.status))...)
}

type chunkOutput struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}

func toChunkOutput(c chunk.Chunk) chunkOutput {
	return chunkOutput{Filename: c.Name, Size: c.Size, Created: c.CreatedAt}
}

// findChunks 新的在前
func (a ChunkAPI) findChunks(_ *gin.Context, _ *struct{}) (gin.H, error) {
	items, err := a.store.ListOrderedByAge()
	if err != nil {
		return nil, reason.ErrServer.SetMsg(err.Error())
	}
	out := make([]chunkOutput, 0, len(items))
	for _, c := range slices.Backward(items) {
		out = append(out, toChunkOutput(c))
	}
	return gin.H{"chunks": out}, nil
}

func (a ChunkAPI) latestChunk(_ *gin.Context, _ *struct{}) (chunkOutput, error) {
	c, err := a.store.Latest()
	if errors.Is(err, chunk.ErrNotFound) {
		return chunkOutput{}, reason.ErrNotFound.SetMsg("no video chunk found")
	}
	if err != nil {
		return chunkOutput{}, reason.ErrServer.SetMsg(err.Error())
	}
	return toChunkOutput(c), nil
}

func (a ChunkAPI) playlist(c *gin.Context) {
	items, err := a.store.ListOrderedByAge()
	if err != nil {
		web.Fail(c, reason.ErrServer.SetMsg(err.Error()))
		return
	}
	if len(items) == 0 {
		web.Fail(c, reason.ErrNotFound.SetMsg("no video chunk found"))
		return
	}

	// winSize=0 表示 VOD
	pl, err := m3u8.NewMediaPlaylist(0, uint(len(items)))
	if err != nil {
		web.Fail(c, reason.ErrServer.SetMsg(err.Error()))
		return
	}
	pl.MediaType = m3u8.VOD
	// 每个分片由独立的 ffmpeg 进程写出，时间戳都从 0 开始
	for i, item := range items {
		if err := pl.Append("/files/chunks/"+item.Name, a.live.ChunkDuration().Seconds(), ""); err != nil {
			break
		}
		if i > 0 {
			_ = pl.SetDiscontinuity()
		}
	}
	pl.Close()

	c.Header("Content-Type", "application/vnd.apple.mpegurl")
	c.Header("Cache-Control", "no-cache")
	c.String(http.StatusOK, pl.String())
}

type diskOutput struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

type statusOutput struct {
	Streaming        bool         `json:"streaming"`
	Chunks           int          `json:"chunks"`
	LatestChunk      *chunkOutput `json:"latest_chunk"`
	WebsocketClients int          `json:"websocket_clients"`
	Live             live.Stats   `json:"live"`
	Notify           notify.Stats `json:"notify"`
	Disk             *diskOutput  `json:"disk,omitempty"`
}

func (a ChunkAPI) status(c *gin.Context, _ *struct{}) (statusOutput, error) {
	out := statusOutput{
		Streaming: a.live.Running(),
		Live:      a.live.Stats(),
		Notify:    a.hub.Stats(),
	}
	out.WebsocketClients = a.hub.CountPrefix(wsObserverPrefix)
	if items, err := a.store.ListOrderedByAge(); err == nil {
		out.Chunks = len(items)
	}
	if latest, err := a.store.Latest(); err == nil {
		v := toChunkOutput(latest)
		out.LatestChunk = &v
	}
	if u, err := a.store.Usage(); err == nil {
		out.Disk = &diskOutput{Path: u.Path, Total: u.Total, Free: u.Free, UsedPercent: u.UsedPercent}
	} else {
		slog.WarnContext(c.Request.Context(), "disk usage", "err", err)
	}
	return out, nil
}
