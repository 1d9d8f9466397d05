package apiv1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/repository"
	"github.com/beam-cloud/salesmap/pkg/types"
)

// OAuthProvider is the authorization-code side of the OAuth client
type OAuthProvider interface {
	IsConfigured() bool
	RedirectURL(fallback string) string
	AuthorizeURL(state, redirectURL string) (string, error)
	Exchange(ctx context.Context, code, redirectURL string) (*types.Credential, error)
}

// StateCodec round-trips the template choice through the OAuth state parameter
type StateCodec interface {
	Encode(tmpl *types.Template) (string, error)
	Decode(state string) (*types.Template, error)
}

// TemplateParser turns a request parameter into a template, or nil
type TemplateParser interface {
	FromParam(raw string) *types.Template
}

type AuthGroupOpts struct {
	Provider    OAuthProvider
	State       StateCodec
	Templates   TemplateParser
	Sessions    repository.SessionRepository
	Cookies     SessionCookies
	FrontendURL string
	LoginURL    string
}

// AuthGroup handles the consent redirect, the callback that creates a
// session, and logout.
type AuthGroup struct {
	routerGroup *echo.Group
	opts        AuthGroupOpts
}

func NewAuthGroup(g *echo.Group, opts AuthGroupOpts) *AuthGroup {
	if opts.FrontendURL == "" {
		opts.FrontendURL = "/"
	}
	if opts.LoginURL == "" {
		opts.LoginURL = "/login"
	}

	group := &AuthGroup{routerGroup: g, opts: opts}

	g.GET("/login", group.Login)
	g.GET("/callback", group.Callback)
	g.GET("/logout", group.Logout)

	return group
}

// callbackURL derives the redirect URI from the incoming request
func callbackURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host + HttpServerBaseRoute + "/auth/callback"
}

// Login redirects to the consent screen. An optional template parameter
// rides along in the signed state.
func (g *AuthGroup) Login(c echo.Context) error {
	if !g.opts.Provider.IsConfigured() {
		return ErrorResponse(c, http.StatusInternalServerError, errMsgNotConfigured)
	}

	tmpl := g.opts.Templates.FromParam(c.QueryParam("template"))
	state, err := g.opts.State.Encode(tmpl)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode oauth state")
		return ErrorResponse(c, http.StatusInternalServerError, errMsgInternal)
	}

	url, err := g.opts.Provider.AuthorizeURL(state, g.opts.Provider.RedirectURL(callbackURL(c)))
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, errMsgNotConfigured)
	}

	return c.Redirect(http.StatusFound, url)
}

// Callback exchanges the authorization code, creates a session and sets the
// session cookie.
func (g *AuthGroup) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	code := c.QueryParam("code")
	if code == "" {
		if reason := c.QueryParam("error"); reason != "" {
			log.Info().Str("reason", reason).Msg("oauth consent not granted")
		}
		return ErrorResponse(c, http.StatusBadRequest, errMsgMissingCode)
	}

	if !g.opts.Provider.IsConfigured() {
		return ErrorResponse(c, http.StatusInternalServerError, errMsgNotConfigured)
	}

	var tmpl *types.Template
	if state := c.QueryParam("state"); state != "" {
		decoded, err := g.opts.State.Decode(state)
		if err != nil {
			log.Warn().Err(err).Msg("rejected oauth state")
			return ErrorResponse(c, http.StatusBadRequest, errMsgInvalidState)
		}
		tmpl = decoded
	}

	cred, err := g.opts.Provider.Exchange(ctx, code, g.opts.Provider.RedirectURL(callbackURL(c)))
	if err != nil {
		log.Error().Err(err).Msg("oauth token exchange failed")
		return ErrorResponse(c, http.StatusInternalServerError, errMsgTokenExchange)
	}

	session := &types.Session{
		ID:         common.GenerateSessionID(),
		Credential: *cred,
		CreatedAt:  time.Now(),
		Template:   tmpl,
	}
	if err := g.opts.Sessions.CreateSession(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to store session")
		return ErrorResponse(c, http.StatusInternalServerError, errMsgSessionCreate)
	}

	templateID := ""
	if tmpl != nil {
		templateID = tmpl.ID
	}
	log.Info().
		Bool("refresh_token", cred.RefreshToken != "").
		Str("template_id", templateID).
		Msg("session created")

	g.opts.Cookies.Set(c, session.ID)
	return c.Redirect(http.StatusFound, g.opts.FrontendURL)
}

// Logout destroys the session and clears the cookie
func (g *AuthGroup) Logout(c echo.Context) error {
	if id := g.opts.Cookies.ID(c); id != "" {
		if err := g.opts.Sessions.DeleteSession(c.Request().Context(), id); err != nil {
			log.Warn().Err(err).Msg("failed to delete session")
		}
	}

	g.opts.Cookies.Clear(c)
	return c.Redirect(http.StatusFound, g.opts.LoginURL)
}
