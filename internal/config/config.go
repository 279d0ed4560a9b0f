package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// CORS
	AllowedOrigins []string

	// Storage
	ImagesDir   string // root of canonical storage, contains collages/ and metadata.json
	PublicURL   string // base URL under which canonical files are served
	UploadMaxMB int64  // multipart upload size limit

	// Optional S3-compatible mirror of canonical storage
	MirrorBucket    string // empty disables mirroring
	MirrorRegion    string
	MirrorEndpoint  string
	MirrorAccessKey string
	MirrorSecretKey string
	MirrorPublicURL string

	// Image pipeline
	TargetWidth     int
	TargetHeight    int
	LayoutPolicy    string // "fit" or "letterbox"
	InitialQuality  int
	QualityFloor    int
	QualityStep     int
	MaxEncodedBytes int

	// Deduplication
	DuplicateThresholdBits int

	// Description service
	OpenAIAPIKey     string
	OpenAIModel      string
	GeminiAPIKey     string
	GeminiModel      string
	DescribeOrder    []string // provider names tried in order
	DescribeTimeout  time.Duration
	DescribeDisabled bool

	// Logging
	LogLevel string
}

func Load() *Config {
	// Load .env file in development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// CORS
		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		// Storage
		ImagesDir:   getEnv("IMAGES_DIR", "images"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080/images"),
		UploadMaxMB: int64(parseInt(getEnv("UPLOAD_MAX_MB", "10"), 10)),

		// Mirror
		MirrorBucket:    getEnv("MIRROR_BUCKET", ""),
		MirrorRegion:    getEnv("MIRROR_REGION", "auto"),
		MirrorEndpoint:  getEnv("MIRROR_ENDPOINT", ""),
		MirrorAccessKey: getEnv("MIRROR_ACCESS_KEY", ""),
		MirrorSecretKey: getEnv("MIRROR_SECRET_KEY", ""),
		MirrorPublicURL: getEnv("MIRROR_PUBLIC_URL", ""),

		// Image pipeline
		TargetWidth:     parseInt(getEnv("TARGET_WIDTH", "800"), 800),
		TargetHeight:    parseInt(getEnv("TARGET_HEIGHT", "800"), 800),
		LayoutPolicy:    getEnv("LAYOUT_POLICY", "fit"),
		InitialQuality:  parseInt(getEnv("JPEG_QUALITY", "90"), 90),
		QualityFloor:    parseInt(getEnv("JPEG_QUALITY_FLOOR", "20"), 20),
		QualityStep:     parseInt(getEnv("JPEG_QUALITY_STEP", "5"), 5),
		MaxEncodedBytes: parseInt(getEnv("MAX_ENCODED_BYTES", "500000"), 500000),

		// Deduplication
		DuplicateThresholdBits: parseInt(getEnv("DUP_THRESHOLD_BITS", "0"), 0),

		// Description service
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		DescribeOrder:    parseStringSlice(getEnv("DESCRIBE_PROVIDERS", "openai,gemini")),
		DescribeTimeout:  parseDuration(getEnv("DESCRIBE_TIMEOUT", "30s"), 30*time.Second),
		DescribeDisabled: parseBool(getEnv("DESCRIBE_DISABLED", "false"), false),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseDuration parses duration string with fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %q, using %s", s, fallback)
		return fallback
	}
	return d
}

// parseStringSlice parses comma-separated string into slice
func parseStringSlice(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseInt parses int with fallback
func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// parseBool parses bool with fallback
func parseBool(s string, fallback bool) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}
