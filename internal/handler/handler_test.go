package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/events"
	"inline-media-backend/internal/generator"
	"inline-media-backend/internal/markup"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/service"
	"inline-media-backend/internal/storage"
	"inline-media-backend/internal/tools"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGen struct {
	url  string
	gate chan struct{}
}

func (g *stubGen) Dispatch(_ context.Context, _ generator.Request) <-chan generator.Outcome {
	ch := make(chan generator.Outcome, 1)
	go func() {
		defer close(ch)
		if g.gate != nil {
			<-g.gate
		}
		ch <- generator.Outcome{URL: g.url}
	}()
	return ch
}

type stubLister struct{ names []string }

func (l stubLister) Workflows(context.Context) ([]string, error) { return l.names, nil }

type testServer struct {
	router *gin.Engine
	store  storage.Storage
	gen    *stubGen
	media  *service.MediaService
}

func newTestServer(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStorage()
	bus := events.NewBus()
	settings, err := config.NewSettingsStore("", 0)
	require.NoError(t, err)

	gen := &stubGen{url: "http://media.local/new.png"}
	media := service.NewMediaService(store, bus, settings, gen, nil, service.MediaOptions{
		Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	t.Cleanup(media.Close)

	chat := service.NewChatService(store, bus, config.SessionConfig{TTL: time.Hour})
	catalog := service.NewWorkflowCatalog(bus, stubLister{names: []string{"flux"}})

	cfg := &config.Config{RateLimit: rl}
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.CORS.AllowedMethods = []string{"GET", "POST", "PUT"}

	router := NewRouter(cfg, Handlers{
		Chat:     NewChatHandler(chat),
		Media:    NewMediaHandler(media),
		Settings: NewSettingsHandler(settings, catalog),
		Events:   NewEventsHandler(bus, time.Second),
		Tools:    NewToolsHandler(tools.GetMediaTools(gen, settings)),
	})

	return &testServer{router: router, store: store, gen: gen, media: media}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedRecord(t *testing.T) model.MediaRecord {
	t.Helper()
	rec := model.MediaRecord{
		ID:             "custom-img-1-abc",
		URL:            "http://media.local/old.png",
		Prompt:         "a cat",
		OriginalPrompt: "a cat",
		GenType:        model.GenSingle,
	}
	container, err := markup.RenderContainer(rec, markup.DefaultLabels)
	require.NoError(t, err)
	html := container + `<span data-prompt="a cat">hi</span>`

	require.NoError(t, s.store.CreateSession(&model.Session{ID: "s1", Title: "chat"}))
	require.NoError(t, s.store.AddMessage("s1", &model.Message{
		ID:          "m1",
		SessionID:   "s1",
		Role:        model.RoleAssistant,
		HTMLContent: html,
		Extra:       model.MessageExtra{CustomImages: []model.MediaRecord{rec}},
	}))
	return rec
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	w := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMediaHideShow(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	rec := s.seedRecord(t)
	base := "/api/media/s1/m1/" + rec.ID

	w := s.do(http.MethodPost, base+"/hide", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.MediaRecord
	decode(t, w, &got)
	assert.True(t, got.Hidden)

	msg, err := s.store.GetMessage("s1", "m1")
	require.NoError(t, err)
	assert.Contains(t, msg.HTMLContent, markup.HiddenClass)

	w = s.do(http.MethodPost, base+"/show", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.False(t, got.Hidden)
}

func TestMediaUnknownRecord(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	s.seedRecord(t)

	w := s.do(http.MethodPost, "/api/media/s1/m1/nope/hide", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/media/missing/m1/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMediaRegenerate(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	rec := s.seedRecord(t)

	w := s.do(http.MethodPost, "/api/media/s1/m1/"+rec.ID+"/regenerate?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got model.MediaRecord
	decode(t, w, &got)
	assert.Equal(t, "http://media.local/new.png", got.URL)
}

func TestMediaRegenerateBusy(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	rec := s.seedRecord(t)
	s.gen.gate = make(chan struct{})
	path := "/api/media/s1/m1/" + rec.ID + "/regenerate"

	w := s.do(http.MethodPost, path, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = s.do(http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(s.gen.gate)
	s.media.Wait()

	w = s.do(http.MethodGet, "/api/media/s1/m1/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st model.MediaStateResponse
	decode(t, w, &st)
	assert.Empty(t, st.Busy)
}

func TestViewer(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	rec := s.seedRecord(t)

	w := s.do(http.MethodPost, "/api/viewer/zoom-in", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/media/s1/m1/"+rec.ID+"/fullscreen", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/viewer/zoom-in", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st struct {
		Open    bool `json:"open"`
		Percent int  `json:"percent"`
	}
	decode(t, w, &st)
	assert.True(t, st.Open)
	assert.Equal(t, 135, st.Percent)

	w = s.do(http.MethodPost, "/api/viewer/close", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &st)
	assert.False(t, st.Open)

	w = s.do(http.MethodPost, "/api/viewer/spin", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsUpdate(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	w := s.do(http.MethodPut, "/api/settings", `{"aspectRatio":"16:9","useChained":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var st config.Settings
	decode(t, w, &st)
	assert.Equal(t, "16:9", st.AspectRatio)
	assert.True(t, st.UseChained)
	assert.Equal(t, 512, st.BaseSize)

	w = s.do(http.MethodPut, "/api/settings", `{"aspectRatio":"banana"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/settings", `{"baseSize":"big"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/settings", "")
	decode(t, w, &st)
	assert.Equal(t, "16:9", st.AspectRatio)
}

func TestWorkflows(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	w := s.do(http.MethodGet, "/api/workflows", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"workflows":["flux"]}`, w.Body.String())

	w = s.do(http.MethodPut, "/api/workflows", `{"workflows":["b","a","b"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"workflows":["a","b"]}`, w.Body.String())
}

func TestToolsInvoke(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	w := s.do(http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "media_generate")

	w = s.do(http.MethodPost, "/api/tools/media_generate", `{"prompt":"a cat"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Success bool `json:"success"`
		Data    struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	decode(t, w, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "http://media.local/new.png", out.Data.URL)

	w = s.do(http.MethodPost, "/api/tools/unknown", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/styles", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/styles", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/api/styles", "").Code)

	// /health is outside the limited group
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{storage.ErrSessionNotFound, http.StatusNotFound},
		{service.ErrRecordNotFound, http.StatusNotFound},
		{service.ErrBusy, http.StatusConflict},
		{config.ErrInvalidSettings, http.StatusBadRequest},
		{service.ErrInvalidSwipe, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRenderCallbackGeneratesMedia(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	s.media.Bind()
	require.NoError(t, s.store.CreateSession(&model.Session{ID: "s1", Title: "chat"}))

	w := s.do(http.MethodPost, "/api/chat/message", `{"session_id":"s1","role":"assistant","name":"Alice","content":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var msg model.Message
	decode(t, w, &msg)

	body, err := json.Marshal(model.RenderUpdateRequest{
		SessionID:   "s1",
		HTMLContent: `<p>look</p><span data-prompt="a cat">hi</span>`,
		RenderTime:  12,
	})
	require.NoError(t, err)
	w = s.do(http.MethodPut, "/api/chat/message/"+msg.ID+"/render", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	s.media.Wait()

	stored, err := s.store.GetMessage("s1", msg.ID)
	require.NoError(t, err)
	require.Len(t, stored.Extra.CustomImages, 1)
	assert.Equal(t, "http://media.local/new.png", stored.Extra.CustomImages[0].URL)
	assert.Less(t, strings.Index(stored.HTMLContent, markup.ContainerClass), strings.Index(stored.HTMLContent, `data-prompt="a cat"`))

	w = s.do(http.MethodGet, "/api/media/s1/"+msg.ID+"/state", "")
	var st model.MediaStateResponse
	decode(t, w, &st)
	assert.Equal(t, "has-media", st.State)
}
