package api

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/core/live"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// LiveAPI 直播录制控制
type LiveAPI struct {
	live *live.Scheduler
}

func NewLiveAPI(s *live.Scheduler) LiveAPI {
	return LiveAPI{live: s}
}

func registerLive(g gin.IRouter, api LiveAPI, handler ...gin.HandlerFunc) {
	{
		group := g.Group("/api/rtsp", handler...)
		group.POST("/start", web.WrapH(api.start))
		group.POST("/stop", web.WrapH(api.stop))
		group.GET("/status", web.WrapH(api.status))
	}
	g.POST("/set-rtsp", append(handler, web.WrapH(api.setSource))...)
}

type liveOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (a LiveAPI) start(_ *gin.Context, _ *struct{}) (liveOutput, error) {
	if a.live.Running() {
		return liveOutput{Status: "already_running", Message: "live capture is already running"}, nil
	}
	if err := a.live.Start(); err != nil {
		if errors.Is(err, live.ErrNoSource) {
			return liveOutput{}, reason.ErrBadRequest.SetMsg(err.Error())
		}
		return liveOutput{}, reason.ErrServer.SetMsg(err.Error())
	}
	return liveOutput{Status: "started", Message: "live capture started"}, nil
}

func (a LiveAPI) stop(_ *gin.Context, _ *struct{}) (liveOutput, error) {
	if !a.live.Running() {
		return liveOutput{Status: "not_running", Message: "live capture is not running"}, nil
	}
	a.live.Stop()
	return liveOutput{Status: "stopped", Message: "live capture stopped"}, nil
}

func (a LiveAPI) status(_ *gin.Context, _ *struct{}) (live.Stats, error) {
	return a.live.Stats(), nil
}

type setSourceInput struct {
	URL string `json:"url"`
}

// setSource 更换直播源后总是以新地址启动录制
func (a LiveAPI) setSource(c *gin.Context, in *setSourceInput) (liveOutput, error) {
	if in.URL == "" {
		return liveOutput{}, reason.ErrBadRequest.SetMsg("url is required")
	}
	if err := a.live.SetSource(c.Request.Context(), in.URL); err != nil {
		return liveOutput{}, reason.ErrServer.SetMsg("failed to update source: " + err.Error())
	}
	if err := a.live.Start(); err != nil {
		return liveOutput{}, reason.ErrServer.SetMsg("failed to start capture: " + err.Error())
	}
	return liveOutput{
		Status:  "success",
		Message: fmt.Sprintf("source updated to %s and capture started", in.URL),
	}, nil
}
