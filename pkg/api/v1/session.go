package apiv1

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/repository"
	"github.com/beam-cloud/salesmap/pkg/types"
)

const sessionContextKey = "session"

// SessionCookies reads and writes the opaque session id cookie
type SessionCookies struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

func NewSessionCookies(cfg types.SessionConfig) SessionCookies {
	c := SessionCookies{Name: cfg.CookieName, TTL: cfg.TTL, Secure: cfg.Secure}
	if c.Name == "" {
		c.Name = "sid"
	}
	if c.TTL <= 0 {
		c.TTL = types.DefaultSessionTTL
	}
	return c
}

// Set stores the session id in an httponly, same-site lax cookie
func (s SessionCookies) Set(c echo.Context, sessionID string) {
	c.SetCookie(&http.Cookie{
		Name:     s.Name,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.TTL.Seconds()),
	})
}

// Clear removes the session cookie
func (s SessionCookies) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// ID returns the session id carried by the request, if any
func (s SessionCookies) ID(c echo.Context) string {
	cookie, err := c.Cookie(s.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewSessionMiddleware loads the session named by the cookie into the echo
// context. Requests without a live session pass through with none attached.
func NewSessionMiddleware(cookies SessionCookies, sessions repository.SessionRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := cookies.ID(c)
			if id == "" {
				return next(c)
			}

			session, err := sessions.GetSession(c.Request().Context(), id)
			if err != nil {
				if !errors.Is(err, types.ErrSessionNotFound) {
					log.Warn().Err(err).Msg("session lookup failed")
				}
				return next(c)
			}

			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

// RequireSession rejects requests that carry no live session
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if SessionFromContext(c) == nil {
				return ErrorResponse(c, http.StatusUnauthorized, errMsgUnauthorized)
			}
			return next(c)
		}
	}
}

// SessionFromContext returns the session loaded by NewSessionMiddleware
func SessionFromContext(c echo.Context) *types.Session {
	session, _ := c.Get(sessionContextKey).(*types.Session)
	return session
}

