// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// EnvironmentVariable は環境プリセットを選択する環境変数名。
const EnvironmentVariable = "DOCUMENT_DOWNLOAD_ENVIRONMENT"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Environment string
	Debug       bool

	// Upstream
	APIHostName                         string
	AdminClientUserName                 string
	AdminClientSecret                   string
	DocumentDownloadAPIHostName         string
	DocumentDownloadAPIHostNameInternal string
	UpstreamTimeout                     time.Duration

	// Frontend
	FrontendHostName  string
	HTTPProtocol      string
	HeaderColour      string
	SecurityPolicyURL string

	// Cookie
	CookieDomain string
	CookieSecure bool

	// CSRF
	CSRFEnabled bool
	SecretKey   string

	// Rate Limit（1分あたり・クライアントIPあたり）
	ConfirmRateLimit int

	// Server
	ServerPort     string
	RequestTimeout time.Duration

	// Logging
	LogLevel slog.Level
}

// Load は環境変数からConfigを読み込む。
// DOCUMENT_DOWNLOAD_ENVIRONMENT で選んだプリセットを既定値とし、実際の環境変数で上書きする。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	env := os.Getenv(EnvironmentVariable)
	if env == "" {
		return nil, fmt.Errorf("required environment variables are not set: [%s]", EnvironmentVariable)
	}

	preset, ok := Presets[env]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q", env)
	}

	src := source{preset: preset}
	cfg := &Config{Environment: env}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := src.get(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.APIHostName = required("API_HOST_NAME")
	cfg.DocumentDownloadAPIHostName = required("DOCUMENT_DOWNLOAD_API_HOST_NAME")
	cfg.AdminClientSecret = required("ADMIN_CLIENT_SECRET")

	cfg.CSRFEnabled = src.getBool("CSRF_ENABLED", true)
	if cfg.CSRFEnabled {
		cfg.SecretKey = required("SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Debug = src.getBool("DEBUG", false)
	cfg.AdminClientUserName = src.getString("ADMIN_CLIENT_USER_NAME", "notify-admin")
	cfg.DocumentDownloadAPIHostNameInternal = src.getString("DOCUMENT_DOWNLOAD_API_HOST_NAME_INTERNAL", cfg.DocumentDownloadAPIHostName)
	cfg.UpstreamTimeout = src.getDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.FrontendHostName = src.getString("DOCUMENT_DOWNLOAD_FRONTEND_HOST_NAME", "")
	cfg.HTTPProtocol = src.getString("HTTP_PROTOCOL", "http")
	cfg.HeaderColour = src.getString("HEADER_COLOUR", "#005EA5")
	cfg.SecurityPolicyURL = src.getString("SECURITY_POLICY_URL", "https://vdp.cabinetoffice.gov.uk/.well-known/security.txt")
	cfg.CookieSecure = cfg.HTTPProtocol == "https"
	cfg.ConfirmRateLimit = src.getInt("CONFIRM_RATE_LIMIT", 10)
	cfg.ServerPort = src.getString("SERVER_PORT", "8080")
	cfg.RequestTimeout = src.getDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.LogLevel = src.getLevel("LOG_LEVEL", slog.LevelInfo)

	domain, err := DeriveCookieDomain(cfg.DocumentDownloadAPIHostName, cfg.FrontendHostName)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cookie domain: %w", err)
	}
	cfg.CookieDomain = domain

	return cfg, nil
}

// DeriveCookieDomain はAPIホストとフロントエンドホストが共有するドメインを返す。
// フロントエンドが設定したCookieをAPIが読めるよう、両者に共通する最長のドメインをCookieのDomainにする。
// frontendHost が空の場合はDomainを付けない（空文字列を返す）。
// 共通部分が公開サフィックス以下（例: "localhost", "gov.uk"）しかない場合はエラーを返す。
func DeriveCookieDomain(apiHost, frontendHost string) (string, error) {
	if frontendHost == "" {
		return "", nil
	}

	apiName, err := hostname(apiHost)
	if err != nil {
		return "", err
	}
	frontendName, err := hostname(frontendHost)
	if err != nil {
		return "", err
	}

	apiLabels := strings.Split(apiName, ".")
	frontendLabels := strings.Split(frontendName, ".")

	var common []string
	for i := 1; i <= len(apiLabels) && i <= len(frontendLabels); i++ {
		a := apiLabels[len(apiLabels)-i]
		if a != frontendLabels[len(frontendLabels)-i] {
			break
		}
		common = append([]string{a}, common...)
	}

	domain := strings.Join(common, ".")
	if domain == "" {
		return "", fmt.Errorf("%s and %s share no common domain", apiName, frontendName)
	}

	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == domain {
		return "", fmt.Errorf("common domain %q of %s and %s is a public suffix", domain, apiName, frontendName)
	}

	return domain, nil
}

func hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid host URL %q: %w", rawURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("host URL %q has no hostname", rawURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

// source は環境変数とプリセットを重ねて値を引く。
type source struct {
	preset map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.preset[key]
}

func (s source) getString(key, defaultVal string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getBool(key string, defaultVal bool) bool {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func (s source) getLevel(key string, defaultVal slog.Level) slog.Level {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return l
}
