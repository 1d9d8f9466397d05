package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	HttpServerBaseRoute = "/api"
)

const (
	errMsgUnauthorized   = "unauthorized"
	errMsgNotConfigured  = "server not configured"
	errMsgMissingCode    = "missing code"
	errMsgInvalidState   = "invalid state"
	errMsgTokenExchange  = "token exchange failed"
	errMsgSessionCreate  = "failed to create session"
	errMsgInternal       = "internal error"
	errMsgUpstreamFailed = "upstream error"
)

// Response is the error body returned by every endpoint
type Response struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse returns an error response
func ErrorResponse(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{Error: message})
}

// UpstreamErrorResponse passes a provider status and body through to the client
func UpstreamErrorResponse(c echo.Context, status int, detail string) error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return c.JSON(status, Response{Error: errMsgUpstreamFailed, Status: status, Detail: detail})
}
