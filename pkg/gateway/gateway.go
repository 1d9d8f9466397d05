package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/beam-cloud/salesmap/pkg/api/v1"
	"github.com/beam-cloud/salesmap/pkg/clients"
	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/oauth"
	"github.com/beam-cloud/salesmap/pkg/repository"
	"github.com/beam-cloud/salesmap/pkg/sales"
	"github.com/beam-cloud/salesmap/pkg/types"
)

type Gateway struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient
	httpServer  *http.Server
	echo        *echo.Echo
	ctx         context.Context
	cancelFunc  context.CancelFunc

	baseRouteGroup *echo.Group

	sessions repository.SessionRepository
	cache    repository.ResultCache

	googleOAuth *oauth.GoogleClient
	stateCodec  *oauth.StateCodec
	gmail       *clients.GmailClient
	service     *sales.Service
}

// NewGateway loads configuration and builds a gateway from it
func NewGateway() (*Gateway, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return nil, err
	}
	return New(configManager.GetConfig())
}

// New builds a gateway from an explicit config. In local mode sessions and
// results live in process memory; in remote mode both live in redis.
func New(config types.AppConfig) (*Gateway, error) {
	var redisClient *common.RedisClient
	var err error

	if config.IsLocalMode() {
		log.Info().Msg("running in local mode - redis disabled")
	} else {
		redisClient, err = common.NewRedisClient(config.Database.Redis, common.WithClientName("SalesmapGateway"))
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		Config:      config,
		RedisClient: redisClient,
		ctx:         ctx,
		cancelFunc:  cancel,
		googleOAuth: oauth.NewGoogleClient(config.OAuth.Google),
	}

	g.initStores()

	stateSecret := config.Session.StateSecret
	if stateSecret == "" {
		stateSecret = config.OAuth.Google.ClientSecret
	}
	if stateSecret == "" {
		log.Warn().Msg("no state secret configured - using a random per-process secret")
	}
	g.stateCodec = oauth.NewStateCodec(stateSecret, config.Session.StateTTL)

	g.gmail = clients.NewGmailClient(config.Gmail,
		clients.WithPageSize(config.Sales.PageSize),
		clients.WithChunkSize(config.Sales.ChunkSize),
		clients.WithFetchMode(config.Sales.FetchMode),
	)

	g.service = sales.NewService(sales.ServiceOpts{
		Tokens:       oauth.NewTokenManager(g.googleOAuth, g.sessions),
		Mail:         g.gmail,
		Cache:        g.cache,
		Resolver:     sales.NewTemplateResolver(nil),
		Reporter:     sales.LogReporter{},
		CacheTTL:     config.Sales.CacheTTL,
		PreviewBytes: config.Sales.ProbePreviewBytes,
	})

	if !g.googleOAuth.IsConfigured() {
		log.Warn().Msg("google oauth is not configured - login will fail until clientId and clientSecret are set")
	}

	return g, nil
}

func (g *Gateway) initStores() {
	if g.RedisClient != nil {
		g.sessions = repository.NewSessionRedisRepository(g.RedisClient, g.Config.Session.TTL)
		g.cache = repository.NewResultRedisCache(g.RedisClient)
		log.Info().Msg("sessions and results stored in redis")
		return
	}

	g.sessions = repository.NewSessionMemoryRepository(g.Config.Session.TTL)
	g.cache = repository.NewResultMemoryCache(g.Config.Sales.CacheSize)
	log.Info().Msg("sessions and results stored in memory")
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	if g.Config.Gateway.HTTP.EnablePrettyLogs {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     g.Config.Gateway.HTTP.CORS.AllowedOrigins,
		AllowHeaders:     g.Config.Gateway.HTTP.CORS.AllowedHeaders,
		AllowMethods:     g.Config.Gateway.HTTP.CORS.AllowedMethods,
		AllowCredentials: true,
		ExposeHeaders:    []string{apiv1.HeaderCache, apiv1.HeaderWarnings},
	}))

	e.Use(middleware.Recover())

	g.echo = e
	g.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port),
		Handler: e,
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	cookies := apiv1.NewSessionCookies(g.Config.Session)
	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute, apiv1.NewSessionMiddleware(cookies, g.sessions))

	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), g.RedisClient)
	apiv1.NewAuthGroup(g.baseRouteGroup.Group("/auth"), apiv1.AuthGroupOpts{
		Provider:    g.googleOAuth,
		State:       g.stateCodec,
		Templates:   g.service.Resolver(),
		Sessions:    g.sessions,
		Cookies:     cookies,
		FrontendURL: g.Config.Sales.FrontendURL,
		LoginURL:    g.Config.Sales.LoginURL,
	})
	apiv1.NewTemplatesGroup(g.baseRouteGroup.Group("/templates"), g.service.Resolver().Catalog())
	apiv1.NewSalesGroup(g.baseRouteGroup, g.service)

	return nil
}

// Handler returns the HTTP handler, building routes on first use
func (g *Gateway) Handler() http.Handler {
	if g.echo == nil {
		if err := g.initHTTP(); err != nil {
			log.Error().Err(err).Msg("failed to initialize http routes")
		}
	}
	return g.echo
}

// StartAsync starts the HTTP server without blocking
func (g *Gateway) StartAsync() error {
	if g.echo == nil {
		if err := g.initHTTP(); err != nil {
			return fmt.Errorf("failed to initialize http server: %w", err)
		}
	}

	lis, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http: %w", err)
	}

	go func() {
		if err := g.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Str("mode", g.Config.Mode).
		Str("fetch_mode", g.gmail.FetchMode).
		Msg("gateway http server running")

	return nil
}

// Start runs the gateway until SIGINT or SIGTERM
func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)

	select {
	case <-terminationSignal:
		log.Info().Msg("termination signal received. shutting down...")
	case <-g.ctx.Done():
	}

	g.shutdown()
	return nil
}

// Shutdown gracefully shuts down the gateway
func (g *Gateway) Shutdown() {
	g.shutdown()
}

func (g *Gateway) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), g.Config.Gateway.ShutdownTimeout)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	if g.httpServer != nil {
		eg.Go(func() error {
			return g.httpServer.Shutdown(ctx)
		})
	}

	g.cancelFunc()

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to shutdown gateway gracefully")
	}

	// In-flight requests may still touch redis until the server has drained
	if g.RedisClient != nil {
		if err := g.RedisClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}

	log.Info().Msg("gateway stopped")
}
