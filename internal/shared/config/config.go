package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. It is built once at startup and
// never mutated afterwards.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string
	TrustedProxies  []string
	DatabaseURL     string

	JWTSecret string
	JWTTTL    time.Duration

	ObjectStoreType string
	LocalStoreDir   string

	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	CloudinaryURL       string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration

	EventsBackend string
	SQSQueueURL   string
	AMQPURL       string
	AMQPExchange  string

	UploadConcurrency       int
	MaxUploadBytes          int64
	ExtractionFailurePolicy string
	ExtractFromStore        bool

	TTSBaseURL string
	TTSLang    string

	RequestTimeout time.Duration
	AudioTimeout   time.Duration

	AuthRateLimitRPS   float64
	AuthRateLimitBurst int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	jwtSecret := os.Getenv("JWT_SECRET")

	if env == "production" {
		if dbURL == "" {
			log.Fatal("DATABASE_URL is required in production")
		}
		if jwtSecret == "" {
			log.Fatal("JWT_SECRET is required in production")
		}
	}
	if jwtSecret == "" {
		jwtSecret = "dev-secret"
	}

	return Config{
		Port:            getEnv("PORT", "4000"),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),
		TrustedProxies:  splitAndTrim(getEnv("TRUSTED_PROXIES", "")),
		DatabaseURL:     dbURL,

		JWTSecret: jwtSecret,
		JWTTTL:    getDuration("JWT_TTL", 7*24*time.Hour),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./uploads"),

		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),

		CloudinaryURL:       getEnv("CLOUDINARY_URL", ""),
		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "dms_documents"),

		SupabaseURL:    getEnv("SUPABASE_URL", ""),
		SupabaseKey:    getEnv("SUPABASE_KEY", ""),
		SupabaseBucket: getEnv("SUPABASE_BUCKET", "documents"),

		CacheBackend: normalizeCacheBackend(getEnv("CACHE_BACKEND", "memory")),
		RedisURL:     getEnv("REDIS_URL", ""),
		CacheTTL:     getDuration("CACHE_TTL", 5*time.Minute),

		EventsBackend: normalizeEventsBackend(getEnv("EVENTS_BACKEND", "none")),
		SQSQueueURL:   getEnv("SQS_QUEUE_URL", ""),
		AMQPURL:       getEnv("AMQP_URL", ""),
		AMQPExchange:  getEnv("AMQP_EXCHANGE", "document_events"),

		UploadConcurrency:       getInt("UPLOAD_CONCURRENCY", 4),
		MaxUploadBytes:          int64(getInt("MAX_UPLOAD_BYTES", 20<<20)),
		ExtractionFailurePolicy: normalizeExtractionPolicy(getEnv("EXTRACTION_FAILURE_POLICY", "keep")),
		ExtractFromStore:        getBool("EXTRACT_FROM_STORE", false),

		TTSBaseURL: getEnv("TTS_BASE_URL", "https://translate.google.com"),
		TTSLang:    getEnv("TTS_LANG", "en"),

		RequestTimeout: getDuration("REQUEST_TIMEOUT", 60*time.Second),
		AudioTimeout:   getDuration("AUDIO_TIMEOUT", 5*time.Minute),

		AuthRateLimitRPS:   getFloat("AUTH_RATE_LIMIT_RPS", 5),
		AuthRateLimitBurst: getInt("AUTH_RATE_LIMIT_BURST", 10),
	}
}

// IsDevLike reports whether in-memory fallbacks are acceptable.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid float %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s invalid bool %q, using %t", key, raw, def)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3", "r2":
		return "s3"
	case "cloudinary":
		return "cloudinary"
	case "supabase":
		return "supabase"
	default:
		return "local"
	}
}

func normalizeCacheBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "redis":
		return "redis"
	case "none", "off", "disabled":
		return "none"
	default:
		return "memory"
	}
}

func normalizeEventsBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "amqp", "rabbitmq":
		return "amqp"
	default:
		return "none"
	}
}

func normalizeExtractionPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "skip", "abort":
		return "skip"
	default:
		return "keep"
	}
}
