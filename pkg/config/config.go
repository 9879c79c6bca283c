package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultStandardModel = "gemini-2.5-flash-image"
	DefaultPremiumModel  = "imagen-4.0-generate-001"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultRateInterval  = 2 * time.Second
	DefaultCacheTTL      = 30 * time.Minute
	DefaultCacheCleanup  = 10 * time.Minute
	DefaultAddr          = ":8080"
	DefaultAspectRatio   = "1:1"
	DefaultTier          = "premium"
	DefaultOutputFile    = "ai-generated-image.png"
	DefaultLogLevel      = "info"
)

// Config はアプリケーション全体の環境設定（APIキーやモデル名、キャッシュ設定）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey  string
	StandardModel string
	PremiumModel  string

	HTTPTimeout  time.Duration
	RateInterval time.Duration
	CacheTTL     time.Duration
	CacheCleanup time.Duration

	// AllowLocalFiles が true の場合のみ file:// のオーバーレイソースを受け付けます。
	AllowLocalFiles bool

	Addr     string
	LogLevel string
}

// DefaultConfig は環境変数を参照しない既定の設定を返すのだ。
func DefaultConfig() *Config {
	return &Config{
		StandardModel: DefaultStandardModel,
		PremiumModel:  DefaultPremiumModel,
		HTTPTimeout:   DefaultHTTPTimeout,
		RateInterval:  DefaultRateInterval,
		CacheTTL:      DefaultCacheTTL,
		CacheCleanup:  DefaultCacheCleanup,
		Addr:          DefaultAddr,
		LogLevel:      DefaultLogLevel,
	}
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
// 解釈できない値は警告を出して既定値を使います。
func LoadConfig() *Config {
	def := DefaultConfig()
	return &Config{
		GeminiAPIKey:    envutil.GetEnv("GEMINI_API_KEY", ""),
		StandardModel:   envutil.GetEnv("STANDARD_IMAGE_MODEL", def.StandardModel),
		PremiumModel:    envutil.GetEnv("PREMIUM_IMAGE_MODEL", def.PremiumModel),
		HTTPTimeout:     durationEnv("HTTP_TIMEOUT", def.HTTPTimeout),
		RateInterval:    durationEnv("RATE_INTERVAL", def.RateInterval),
		CacheTTL:        durationEnv("IMAGE_CACHE_TTL", def.CacheTTL),
		CacheCleanup:    durationEnv("IMAGE_CACHE_CLEANUP", def.CacheCleanup),
		AllowLocalFiles: boolEnv("ALLOW_LOCAL_FILES", false),
		Addr:            envutil.GetEnv("ADDR", def.Addr),
		LogLevel:        strings.ToLower(envutil.GetEnv("LOG_LEVEL", def.LogLevel)),
	}
}

// SlogLevel は LogLevel を slog.Level に変換します。
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("環境変数の値が不正なため既定値を使います", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}

func boolEnv(key string, def bool) bool {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("環境変数の値が不正なため既定値を使います", "key", key, "value", raw, "default", def)
		return def
	}
	return b
}
