package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort         string
	DBDSN           string
	JWTSecret       string
	JWTExpiresMin   int
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string

	// Escrow policy.
	EscrowFeePercent int           // platform fee on release, percent of bid amount
	ReviewWindow     time.Duration // completed orders auto-release after this
	SweepInterval    time.Duration

	// Payment gateway.
	GatewayAPIKey     string
	GatewayPrivateKey string
	GatewayMerchant   string

	// Identity provider callback signing key.
	IdentityCallbackKey string

	// Signed delivery URLs.
	UploadDir     string
	SignedURLKey  string
	SignedURLTTL  time.Duration
	PublicBaseURL string
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	feePct, _ := strconv.Atoi(get("ESCROW_FEE_PERCENT", "5"))
	reviewHours, _ := strconv.Atoi(get("REVIEW_WINDOW_HOURS", "168"))
	sweepMin, _ := strconv.Atoi(get("SWEEP_INTERVAL_MIN", "60"))
	urlTTLMin, _ := strconv.Atoi(get("SIGNED_URL_TTL_MIN", "15"))

	return Config{
		AppPort:         get("APP_PORT", "8080"),
		DBDSN:           must("DB_DSN"),
		JWTSecret:       must("JWT_SECRET"),
		JWTExpiresMin:   expires,
		GoogleClientID:  get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  get("GOOGLE_REDIRECT_URL", ""),
		FrontendBaseURL: get("FRONTEND_BASE_URL", "http://localhost:3000"),

		EscrowFeePercent: feePct,
		ReviewWindow:     time.Duration(reviewHours) * time.Hour,
		SweepInterval:    time.Duration(sweepMin) * time.Minute,

		GatewayAPIKey:     get("GATEWAY_API_KEY", ""),
		GatewayPrivateKey: get("GATEWAY_PRIVATE_KEY", ""),
		GatewayMerchant:   get("GATEWAY_MERCHANT_CODE", ""),

		IdentityCallbackKey: get("IDENTITY_CALLBACK_KEY", ""),

		UploadDir:     get("UPLOAD_DIR", "./uploads"),
		SignedURLKey:  get("SIGNED_URL_KEY", ""),
		SignedURLTTL:  time.Duration(urlTTLMin) * time.Minute,
		PublicBaseURL: get("APP_BASE_URL", ""),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
