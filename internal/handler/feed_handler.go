package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"newsfeed/backend/internal/ingest"
	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/service"
)

type FeedHandler struct {
	feeds   service.FeedService
	refresh service.RefreshService
}

type createFeedRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type feedResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	SiteURL       *string `json:"siteUrl,omitempty"`
	ETag          *string `json:"etag,omitempty"`
	LastModified  *string `json:"lastModified,omitempty"`
	LastFetchedAt *string `json:"lastFetchedAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type ingestResponse struct {
	RunID           string `json:"runId"`
	FeedID          string `json:"feedId"`
	State           string `json:"state"`
	Reason          string `json:"reason,omitempty"`
	Error           string `json:"error,omitempty"`
	Inserted        int    `json:"inserted"`
	Skipped         int    `json:"skipped"`
	EnhanceFailures int    `json:"enhanceFailures"`
	PersistFailures int    `json:"persistFailures"`
	Dropped         int    `json:"dropped"`
	NotModified     bool   `json:"notModified"`
	StartedAt       string `json:"startedAt"`
	FinishedAt      string `json:"finishedAt"`
}

type refreshStatusResponse struct {
	Refreshing bool `json:"refreshing"`
}

func NewFeedHandler(feeds service.FeedService, refresh service.RefreshService) *FeedHandler {
	return &FeedHandler{feeds: feeds, refresh: refresh}
}

func (h *FeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/feeds", h.Create)
	g.GET("/feeds", h.List)
	g.GET("/feeds/refresh", h.RefreshStatus)
	g.GET("/feeds/:id", h.Get)
	g.POST("/feeds/:id/ingest", h.Ingest)
}

// Create registers a feed URL for ingestion.
func (h *FeedHandler) Create(c echo.Context) error {
	var req createFeedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}
	feed, err := h.feeds.Add(c.Request().Context(), req.URL, req.Title)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toFeedResponse(feed))
}

func (h *FeedHandler) List(c echo.Context) error {
	feeds, err := h.feeds.List(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	response := make([]feedResponse, 0, len(feeds))
	for _, feed := range feeds {
		response = append(response, toFeedResponse(feed))
	}
	return c.JSON(http.StatusOK, response)
}

func (h *FeedHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}
	feed, err := h.feeds.Get(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toFeedResponse(feed))
}

// Ingest runs the pipeline for one feed synchronously. A failed run answers
// 502 with the run result in the body.
func (h *FeedHandler) Ingest(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}
	result, err := h.refresh.RefreshFeed(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	status := http.StatusOK
	if result.Failed() {
		status = http.StatusBadGateway
	}
	return c.JSON(status, toIngestResponse(result))
}

func (h *FeedHandler) RefreshStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, refreshStatusResponse{Refreshing: h.refresh.IsRefreshing()})
}

func toFeedResponse(feed model.Feed) feedResponse {
	var lastFetchedAt *string
	if feed.LastFetchedAt != nil {
		formatted := feed.LastFetchedAt.UTC().Format(time.RFC3339)
		lastFetchedAt = &formatted
	}
	return feedResponse{
		ID:            idToString(feed.ID),
		Title:         feed.Title,
		URL:           feed.URL,
		SiteURL:       feed.SiteURL,
		ETag:          feed.ETag,
		LastModified:  feed.LastModified,
		LastFetchedAt: lastFetchedAt,
		CreatedAt:     feed.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     feed.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toIngestResponse(r ingest.IngestResult) ingestResponse {
	return ingestResponse{
		RunID:           r.RunID,
		FeedID:          idToString(r.FeedID),
		State:           string(r.State),
		Reason:          r.Reason,
		Error:           r.Error,
		Inserted:        r.Inserted,
		Skipped:         r.Skipped,
		EnhanceFailures: r.EnhanceFailures,
		PersistFailures: r.PersistFailures,
		Dropped:         r.Dropped,
		NotModified:     r.NotModified,
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:      r.FinishedAt.UTC().Format(time.RFC3339),
	}
}
