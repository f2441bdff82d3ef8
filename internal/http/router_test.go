package http_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"newsfeed/backend/internal/handler"
	transport "newsfeed/backend/internal/http"
	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/service/mock"
)

func TestRouter_RoutesAndLogs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, slog.LevelDebug, "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctrl := gomock.NewController(t)
	refresh := mock.NewMockRefreshService(ctrl)
	refresh.EXPECT().IsRefreshing().Return(false)

	e := transport.NewRouter(
		handler.NewHealthHandler(handler.PingFunc(func(context.Context) error { return nil })),
		handler.NewFeedHandler(mock.NewMockFeedService(ctrl), refresh),
		handler.NewArticleHandler(mock.NewMockArticleService(ctrl)),
	)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feeds/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	logs := buf.String()
	require.Contains(t, logs, `"path":"/healthz"`)
	require.Contains(t, logs, `"status_code":404`)
	require.Contains(t, logs, `"level":"warn"`)
}
