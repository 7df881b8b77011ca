package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type apiError struct {
	Message string `json:"message"`
}

type envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Error: &apiError{Message: message}})
}
