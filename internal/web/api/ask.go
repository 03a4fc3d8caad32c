package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// AskAPI 对直播分片提问
type AskAPI struct {
	asker   *archive.Asker
	archive archive.Core
}

func NewAskAPI(asker *archive.Asker, core archive.Core) AskAPI {
	return AskAPI{asker: asker, archive: core}
}

func registerAsk(g gin.IRouter, api AskAPI, handler ...gin.HandlerFunc) {
	{
		group := g.Group("/ask", handler...)
		group.POST("", web.WrapH(api.ask(""))) // 按关键词路由
		group.POST("/video", web.WrapH(api.ask(archive.ModeVideo)))
		group.POST("/audio", web.WrapH(api.ask(archive.ModeAudio)))
		group.POST("/image", web.WrapH(api.ask(archive.ModeImage)))
	}
	{
		group := g.Group("/results", handler...)
		group.GET("", web.WrapH(api.findResults))
		group.GET("/:id", web.WrapH(api.getResult))
	}
}

func (a AskAPI) ask(mode archive.Mode) func(*gin.Context, *archive.AskInput) (*archive.AskOutput, error) {
	return func(c *gin.Context, in *archive.AskInput) (*archive.AskOutput, error) {
		out, err := a.asker.Ask(c.Request.Context(), mode, *in)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, archive.ErrEmptyQuestion), errors.Is(err, archive.ErrInvalidTime):
			return nil, reason.ErrBadRequest.SetMsg(err.Error())
		case errors.Is(err, chunk.ErrNotFound):
			return nil, reason.ErrNotFound.SetMsg("no video chunk found")
		default:
			return nil, reason.ErrServer.SetMsg(err.Error())
		}
	}
}

type findResultsInput struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

type resultOutput struct {
	ID        int64  `json:"id"`
	Filename  string `json:"filename"`
	Mode      string `json:"mode"`
	Question  string `json:"question"`
	Timestamp string `json:"timestamp"`
}

// findResults 新的在前
func (a AskAPI) findResults(c *gin.Context, in *findResultsInput) (gin.H, error) {
	size := in.Size
	if size <= 0 {
		size = 20
	}
	page := max(in.Page, 1)
	items, total, err := a.archive.Find(c.Request.Context(), size, (page-1)*size)
	if err != nil {
		return nil, reason.ErrDB.Withf(`Find err[%s]`, err.Error())
	}
	out := make([]resultOutput, 0, len(items))
	for _, r := range items {
		out = append(out, resultOutput{
			ID:        r.ID,
			Filename:  r.Filename,
			Mode:      r.Mode,
			Question:  r.Question,
			Timestamp: r.Timestamp.Format("2006-01-02T15:04:05"),
		})
	}
	return gin.H{"results": out, "total": total}, nil
}

// getResult 返回结果文件的完整内容
func (a AskAPI) getResult(c *gin.Context, _ *struct{}) (*archive.Record, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, reason.ErrBadRequest.SetMsg("invalid result id")
	}
	r, err := a.archive.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	rec, err := a.archive.Load(r.Filename)
	if err != nil {
		return nil, reason.ErrNotFound.Withf(`Load file[%s] err[%s]`, r.Filename, err.Error())
	}
	return rec, nil
}
