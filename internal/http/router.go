package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"newsfeed/backend/internal/handler"
)

func NewRouter(
	healthHandler *handler.HealthHandler,
	feedHandler *handler.FeedHandler,
	articleHandler *handler.ArticleHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(RequestLoggerMiddleware())

	healthHandler.RegisterRoutes(e)

	api := e.Group("/api")
	feedHandler.RegisterRoutes(api)
	articleHandler.RegisterRoutes(api)

	return e
}
