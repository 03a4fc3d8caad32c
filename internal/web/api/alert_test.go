package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/core/alert"
	"github.com/gowvp/vigil/internal/core/chunk"
	"github.com/gowvp/vigil/internal/core/notify"
	"github.com/stretchr/testify/require"
)

type nopSplitter struct{}

func (nopSplitter) Extract(context.Context, string, time.Duration, time.Duration, string) (chunk.Chunk, error) {
	return chunk.Chunk{}, chunk.ErrUndersized
}

func (nopSplitter) Thumbnail(chunk.Chunk, string) (string, bool) { return "", false }

func (nopSplitter) RemoveGlob(string) int { return 0 }

type nopAnalyzer struct{}

func (nopAnalyzer) AnalyzeSegment(context.Context, string, string) string { return "{}" }

type fixedProber time.Duration

func (p fixedProber) Duration(string) (time.Duration, error) { return time.Duration(p), nil }

func newAlertServer(t *testing.T) (*gin.Engine, alert.Core, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	core := alert.NewCore(alert.Config{VideoDir: dir}, nopSplitter{}, nopAnalyzer{}, fixedProber(20*time.Second), notify.NewHub(time.Second))
	t.Cleanup(core.Shutdown)
	g := gin.New()
	registerAlert(g, NewAlertAPI(core))
	return g, core, dir
}

func doJSON(g http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestAlertAPI(t *testing.T) {
	g, core, dir := newAlertServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("x"), 0o644))

	w := doJSON(g, http.MethodGet, "/api/videos", "")
	require.Equal(t, http.StatusOK, w.Code)
	var videos struct {
		Videos []string `json:"videos"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &videos))
	require.Equal(t, []string{"1.mp4"}, videos.Videos)

	w = doJSON(g, http.MethodPost, "/api/alerts", `{"video_id":"2","alert_description":"a person falls"}`)
	require.NotEqual(t, http.StatusOK, w.Code)

	w = doJSON(g, http.MethodPost, "/api/alerts", `{"video_id":"1","alert_description":"a person falls","interval_seconds":5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created alertOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "1", created.VideoID)
	require.Equal(t, "a person falls", created.Description)
	require.InDelta(t, 5, created.IntervalSeconds, 0.001)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, core.Wait(ctx, created.ID))

	w = doJSON(g, http.MethodGet, "/api/tasks/"+created.ID+"/details", "")
	require.Equal(t, http.StatusOK, w.Code)
	var task taskOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	require.Equal(t, string(alert.StateCompleted), task.Status)
	require.False(t, task.IsTriggered)
	require.Empty(t, task.Detections)

	w = doJSON(g, http.MethodGet, "/api/debug/detections/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var dbg debugDetectionsOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dbg))
	require.True(t, dbg.Exists)
	require.True(t, dbg.Completed)
	require.False(t, dbg.Triggered)

	w = doJSON(g, http.MethodGet, "/api/debug/detections/missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dbg))
	require.False(t, dbg.Exists)
	require.Equal(t, "missing", dbg.AlertID)

	w = doJSON(g, http.MethodGet, "/api/tasks?video_id=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), created.ID)

	w = doJSON(g, http.MethodDelete, "/api/alerts/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(g, http.MethodGet, "/api/alerts/"+created.ID, "")
	require.NotEqual(t, http.StatusOK, w.Code)
	w = doJSON(g, http.MethodPost, "/api/tasks/"+created.ID+"/rerun", "")
	require.NotEqual(t, http.StatusOK, w.Code)
}
