package handler

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// parseLimitQuery reads ?limit=N. A missing value yields 0.
func parseLimitQuery(c echo.Context) (int, error) {
	raw := strings.TrimSpace(c.QueryParam("limit"))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// Snowflake ids exceed the integer precision of JavaScript clients.
func idToString(id int64) string {
	return strconv.FormatInt(id, 10)
}
