package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"newsfeed/backend/internal/model"
	"newsfeed/backend/internal/service"
)

type ArticleHandler struct {
	service service.ArticleService
}

type articleResponse struct {
	ID                 string  `json:"id"`
	FeedID             string  `json:"feedId"`
	Title              string  `json:"title"`
	Link               string  `json:"link"`
	PublishedAt        string  `json:"publishedAt"`
	PublishedEstimated bool    `json:"publishedEstimated"`
	Summary            *string `json:"summary,omitempty"`
	Content            *string `json:"content,omitempty"`
	Author             *string `json:"author,omitempty"`
	CreatedAt          string  `json:"createdAt"`
}

func NewArticleHandler(service service.ArticleService) *ArticleHandler {
	return &ArticleHandler{service: service}
}

func (h *ArticleHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/feeds/:id/articles", h.ListByFeed)
}

// ListByFeed returns the newest articles of a feed, newest first.
func (h *ArticleHandler) ListByFeed(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}
	limit, err := parseLimitQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	articles, err := h.service.ListByFeed(c.Request().Context(), id, limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	response := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		response = append(response, toArticleResponse(a))
	}
	return c.JSON(http.StatusOK, response)
}

func toArticleResponse(a model.Article) articleResponse {
	return articleResponse{
		ID:                 idToString(a.ID),
		FeedID:             idToString(a.FeedID),
		Title:              a.Title,
		Link:               a.Link,
		PublishedAt:        a.PublishedAt.UTC().Format(time.RFC3339),
		PublishedEstimated: a.PublishedEstimated,
		Summary:            a.Summary,
		Content:            a.Content,
		Author:             a.Author,
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
