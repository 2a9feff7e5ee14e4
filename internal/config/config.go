// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Env holds the configuration values for the application. It is built once at
// startup and passed into constructors; nothing reads the environment afterwards.
type Env struct {
	Region      string
	AWSEndpoint string // e.g. http://localstack:4566; empty uses the real service endpoints
	Bucket      string // attachments; empty disables attachment handling
	Table       string // DynamoDB table holding claims and principals
	PresignTTL  time.Duration

	JWTSecret     []byte
	JWTIssuer     string
	DevBypassAuth bool

	MergeMode string // "present" or "truthy"

	Backend    string
	SQLitePath string

	ListenAddr     string
	MaxUploadBytes int64
	RateLimitRPS   int
	RateLimitBurst int
	CORSOrigins    []string // "*" allows any origin; empty disables CORS

	LogLevel  string
	LogFormat string
}

// MustLoad reads the environment variables and returns an Env struct.
func MustLoad() Env {
	e := Env{
		Region:         get("AWS_REGION", "us-east-1"),
		AWSEndpoint:    get("AWS_ENDPOINT_URL", ""),
		Bucket:         get("S3_BUCKET", ""),
		PresignTTL:     time.Duration(getInt("PRESIGN_TTL_SECONDS", 300)) * time.Second,
		JWTSecret:      []byte(must("JWT_SECRET")),
		JWTIssuer:      get("JWT_ISSUER", ""),
		DevBypassAuth:  get("DEV_BYPASS_AUTH", "") == "true",
		MergeMode:      get("MERGE_MODE", "present"),
		Backend:        get("STORE_BACKEND", BackendDynamoDB),
		SQLitePath:     get("SQLITE_PATH", "claims.db"),
		ListenAddr:     get("LISTEN_ADDR", ":3000"),
		MaxUploadBytes: getInt("MAX_UPLOAD_BYTES", 25<<20),
		RateLimitRPS:   int(getInt("RATE_LIMIT_RPS", 20)),
		RateLimitBurst: int(getInt("RATE_LIMIT_BURST", 40)),
		CORSOrigins:    list(get("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:       get("LOG_LEVEL", "info"),
		LogFormat:      get("LOG_FORMAT", "json"),
	}
	if e.Backend == BackendDynamoDB {
		e.Table = must("DDB_TABLE")
	}
	if err := e.Validate(); err != nil {
		panic(err)
	}
	return e
}

// Validate rejects combinations MustLoad cannot catch field by field.
func (e Env) Validate() error {
	switch e.MergeMode {
	case "present", "truthy":
	default:
		return fmt.Errorf("invalid MERGE_MODE %q", e.MergeMode)
	}
	switch e.Backend {
	case BackendDynamoDB, BackendSQLite:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", e.Backend)
	}
	if len(e.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if e.PresignTTL <= 0 {
		return fmt.Errorf("PRESIGN_TTL_SECONDS must be positive")
	}
	if e.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if e.RateLimitRPS < 0 || e.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// get returns the value of the environment variable k or def if not set.
func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// must returns the value of the environment variable k or panics if not set.
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic(fmt.Errorf("missing env %s", k))
	}
	return v
}

// getInt returns the integer value of k or def if not set. It panics on a value
// that is not an integer.
func getInt(k string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(fmt.Errorf("invalid %s %q: must be an integer", k, v))
	}
	return n
}

// list splits a comma-separated value, dropping empty entries.
func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadDotEnv adds the variables in the dotenv file at path to the process
// environment. Variables already set take precedence; a missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
