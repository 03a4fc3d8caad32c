package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/core/alert"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
	"github.com/jinzhu/copier"
)

// AlertAPI 告警任务
type AlertAPI struct {
	core alert.Core
}

func NewAlertAPI(core alert.Core) AlertAPI {
	return AlertAPI{core: core}
}

func registerAlert(g gin.IRouter, api AlertAPI, handler ...gin.HandlerFunc) {
	g.GET("/api/videos", append(handler, web.WrapH(api.findVideos))...)
	{
		group := g.Group("/api/alerts", handler...)
		group.GET("", web.WrapH(api.findAlerts))
		group.POST("", web.WrapH(api.addAlert))
		group.GET("/:id", web.WrapH(api.getAlert))
		group.DELETE("/:id", web.WrapH(api.delAlert))
	}
	{
		group := g.Group("/api/tasks", handler...)
		group.GET("", web.WrapH(api.findTasks))
		group.DELETE("/:id", web.WrapH(api.delAlert))
		group.POST("/:id/rerun", web.WrapH(api.rerunTask))
		group.GET("/:id/details", web.WrapH(api.getTask))
	}
	g.GET("/api/debug/detections/:id", append(handler, web.WrapH(api.debugDetections))...)
}

// alertErr 领域错误转换为 http 错误
func alertErr(err error) error {
	switch {
	case errors.Is(err, alert.ErrNotFound), errors.Is(err, alert.ErrVideoNotFound):
		return reason.ErrNotFound.SetMsg(err.Error())
	case errors.Is(err, alert.ErrBadRequest), errors.Is(err, alert.ErrRunning):
		return reason.ErrBadRequest.SetMsg(err.Error())
	default:
		return reason.ErrServer.SetMsg(err.Error())
	}
}

func toAlertOutput(a alert.Alert) alertOutput {
	var out alertOutput
	if err := copier.Copy(&out, &a); err != nil {
		slog.Error("Copy", "err", err)
	}
	out.IntervalSeconds = a.IntervalSeconds()
	return out
}

func (a AlertAPI) findVideos(_ *gin.Context, _ *struct{}) (gin.H, error) {
	videos, err := a.core.ListVideos()
	if err != nil {
		return nil, reason.ErrServer.SetMsg(err.Error())
	}
	return gin.H{"videos": videos}, nil
}

func (a AlertAPI) findAlerts(_ *gin.Context, _ *struct{}) (gin.H, error) {
	items := a.core.List()
	out := make([]alertOutput, 0, len(items))
	for _, v := range items {
		out = append(out, toAlertOutput(v))
	}
	return gin.H{"alerts": out}, nil
}

func (a AlertAPI) addAlert(c *gin.Context, in *createAlertInput) (alertOutput, error) {
	if in.IntervalSeconds < 0 {
		return alertOutput{}, reason.ErrBadRequest.SetMsg("interval_seconds must be positive")
	}
	v, err := a.core.Create(c.Request.Context(), alert.CreateInput{
		VideoID:     in.VideoID,
		Description: in.Description,
		Interval:    time.Duration(in.IntervalSeconds * float64(time.Second)),
	})
	if err != nil {
		return alertOutput{}, alertErr(err)
	}
	return toAlertOutput(v), nil
}

func (a AlertAPI) getAlert(c *gin.Context, _ *struct{}) (alertOutput, error) {
	v, err := a.core.Get(c.Param("id"))
	if err != nil {
		return alertOutput{}, alertErr(err)
	}
	return toAlertOutput(v), nil
}

// delAlert 运行中的任务先停止，再删除
func (a AlertAPI) delAlert(c *gin.Context, _ *struct{}) (gin.H, error) {
	id := c.Param("id")
	if err := a.core.Stop(c.Request.Context(), id); err != nil {
		return nil, alertErr(err)
	}
	return gin.H{"id": id, "status": "deleted"}, nil
}

func (a AlertAPI) task(id string) (taskOutput, error) {
	v, err := a.core.Get(id)
	if err != nil {
		return taskOutput{}, alertErr(err)
	}
	dets, err := a.core.Detections(id)
	if err != nil {
		return taskOutput{}, alertErr(err)
	}
	return taskOutput{alertOutput: toAlertOutput(v), Detections: dets}, nil
}

func (a AlertAPI) findTasks(_ *gin.Context, in *findTasksInput) (gin.H, error) {
	items := a.core.List()
	if in.VideoID != "" {
		items = a.core.ListByVideo(in.VideoID)
	}
	out := make([]taskOutput, 0, len(items))
	for _, v := range items {
		t, err := a.task(v.ID)
		if err != nil {
			// 遍历期间被删除
			continue
		}
		out = append(out, t)
	}
	return gin.H{"tasks": out}, nil
}

func (a AlertAPI) getTask(c *gin.Context, _ *struct{}) (taskOutput, error) {
	return a.task(c.Param("id"))
}

func (a AlertAPI) rerunTask(c *gin.Context, _ *struct{}) (alertOutput, error) {
	v, err := a.core.Rerun(c.Request.Context(), c.Param("id"))
	if err != nil {
		return alertOutput{}, alertErr(err)
	}
	return toAlertOutput(v), nil
}

func (a AlertAPI) debugDetections(c *gin.Context, _ *struct{}) (debugDetectionsOutput, error) {
	id := c.Param("id")
	out := debugDetectionsOutput{AlertID: id, Detections: []alert.Detection{}}
	v, err := a.core.Get(id)
	if err != nil {
		return out, nil
	}
	dets, err := a.core.Detections(id)
	if err != nil {
		return out, nil
	}
	out.Exists = true
	out.Detections = dets
	out.Completed = v.State == alert.StateCompleted
	out.Triggered = v.Triggered
	return out, nil
}
