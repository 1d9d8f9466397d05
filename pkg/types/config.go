package types

import (
	"time"
)

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // No Redis, in-memory sessions and cache
	ModeRemote = "remote" // Redis-backed sessions and cache
)

// Fetch modes for message bodies
const (
	FetchModeBatch    = "batch"    // One multipart batch request per chunk
	FetchModeParallel = "parallel" // One GET per message, fanned out within a chunk
)

// AppConfig is the root configuration for the salesmap gateway
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"` // "local" or "remote"
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database DatabaseConfig `key:"database" json:"database"`
	Gateway  GatewayConfig  `key:"gateway" json:"gateway"`
	OAuth    OAuthConfig    `key:"oauth" json:"oauth"`
	Session  SessionConfig  `key:"session" json:"session"`
	Sales    SalesConfig    `key:"sales" json:"sales"`
	Gmail    GmailConfig    `key:"gmail" json:"gmail"`
}

// IsLocalMode returns true if running in local mode (no Redis)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis RedisConfig `key:"redis" json:"redis"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode               RedisMode     `key:"mode" json:"mode"`
	Addrs              []string      `key:"addrs" json:"addrs"`
	Username           string        `key:"username" json:"username"`
	Password           string        `key:"password" json:"password"`
	ClientName         string        `key:"clientName" json:"client_name"`
	EnableTLS          bool          `key:"enableTLS" json:"enable_tls"`
	InsecureSkipVerify bool          `key:"insecureSkipVerify" json:"insecure_skip_verify"`
	PoolSize           int           `key:"poolSize" json:"pool_size"`
	MinIdleConns       int           `key:"minIdleConns" json:"min_idle_conns"`
	MaxIdleConns       int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxIdleTime    time.Duration `key:"connMaxIdleTime" json:"conn_max_idle_time"`
	ConnMaxLifetime    time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
	DialTimeout        time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout       time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRedirects       int           `key:"maxRedirects" json:"max_redirects"`
	MaxRetries         int           `key:"maxRetries" json:"max_retries"`
	RouteByLatency     bool          `key:"routeByLatency" json:"route_by_latency"`
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
}

type HTTPConfig struct {
	Host             string     `key:"host" json:"host"`
	Port             int        `key:"port" json:"port"`
	EnablePrettyLogs bool       `key:"enablePrettyLogs" json:"enable_pretty_logs"`
	CORS             CORSConfig `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// OAuth Configuration
// ----------------------------------------------------------------------------

// OAuthConfig configures the mail provider's OAuth client
type OAuthConfig struct {
	Google GoogleOAuthConfig `key:"google" json:"google"`
}

// GoogleOAuthConfig configures Google OAuth. AuthURL and TokenURL override
// the default Google endpoints and are only set in tests or behind a proxy.
type GoogleOAuthConfig struct {
	ClientID     string `key:"clientId" json:"client_id"`
	ClientSecret string `key:"clientSecret" json:"client_secret"`
	RedirectURL  string `key:"redirectUrl" json:"redirect_url"` // empty = derived from the request host
	AuthURL      string `key:"authUrl" json:"auth_url"`
	TokenURL     string `key:"tokenUrl" json:"token_url"`
}

// ----------------------------------------------------------------------------
// Session Configuration
// ----------------------------------------------------------------------------

type SessionConfig struct {
	CookieName  string        `key:"cookieName" json:"cookie_name"`
	TTL         time.Duration `key:"ttl" json:"ttl"`
	Secure      bool          `key:"secure" json:"secure"`
	StateSecret string        `key:"stateSecret" json:"state_secret"` // HMAC key for the OAuth state parameter
	StateTTL    time.Duration `key:"stateTTL" json:"state_ttl"`
}

// ----------------------------------------------------------------------------
// Sales Pipeline Configuration
// ----------------------------------------------------------------------------

type SalesConfig struct {
	CacheTTL          time.Duration `key:"cacheTTL" json:"cache_ttl"`
	PageSize          int           `key:"pageSize" json:"page_size"`
	ChunkSize         int           `key:"chunkSize" json:"chunk_size"`
	FetchMode         string        `key:"fetchMode" json:"fetch_mode"`
	FrontendURL       string        `key:"frontendURL" json:"frontend_url"`
	LoginURL          string        `key:"loginURL" json:"login_url"`
	ProbePreviewBytes int           `key:"probePreviewBytes" json:"probe_preview_bytes"`
	CacheSize         int           `key:"cacheSize" json:"cache_size"` // local mode only
}

type GmailConfig struct {
	APIBase  string        `key:"apiBase" json:"api_base"`
	BatchURL string        `key:"batchURL" json:"batch_url"`
	Timeout  time.Duration `key:"timeout" json:"timeout"`

	// Client-side pacing of upstream calls; zero disables it
	RequestsPerSecond float64 `key:"requestsPerSecond" json:"requests_per_second"`
	Burst             int     `key:"burst" json:"burst"`
}
