// Package config provides configuration management for the studio agent.
// Configuration is loaded from environment variables, optionally seeded from a
// .env file, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".timelinecraft"

	EnvPort     = "STUDIO_PORT"
	EnvLogLevel = "STUDIO_LOG_LEVEL"
	EnvLogFile  = "STUDIO_LOG_FILE"
	EnvDataDir  = "STUDIO_DATA_DIR"
	EnvHeadless = "STUDIO_HEADLESS"

	EnvImageServiceURL   = "STUDIO_IMAGE_SERVICE_URL"
	EnvImageServiceToken = "STUDIO_IMAGE_SERVICE_TOKEN"
	EnvStyleHint         = "STUDIO_STYLE_HINT"
	EnvGenerateTimeout   = "STUDIO_GENERATE_TIMEOUT"
	EnvCompileTimeout    = "STUDIO_COMPILE_TIMEOUT"

	EnvCompiler     = "STUDIO_COMPILER"
	EnvFFmpegBinary = "STUDIO_FFMPEG_BINARY"
	EnvFFmpegFPS    = "STUDIO_FFMPEG_FPS"
	EnvFFmpegSize   = "STUDIO_FFMPEG_SIZE"

	EnvRefStore       = "STUDIO_REFSTORE"
	EnvMinioEndpoint  = "STUDIO_MINIO_ENDPOINT"
	EnvMinioAccessKey = "STUDIO_MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "STUDIO_MINIO_SECRET_KEY"
	EnvMinioBucket    = "STUDIO_MINIO_BUCKET"
	EnvMinioUseSSL    = "STUDIO_MINIO_USE_SSL"
	EnvS3Bucket       = "STUDIO_S3_BUCKET"
	EnvS3Region       = "STUDIO_S3_REGION"
	EnvS3Profile      = "STUDIO_S3_PROFILE"
	EnvS3PathStyle    = "STUDIO_S3_PATH_STYLE"

	EnvRedisAddr     = "STUDIO_REDIS_ADDR"
	EnvRedisPassword = "STUDIO_REDIS_PASSWORD"
	EnvRedisDB       = "STUDIO_REDIS_DB"
	EnvRedisTTL      = "STUDIO_REDIS_TTL"

	DBFilename = "studio.db"

	DefaultGenerateTimeout = 2 * time.Minute
	DefaultCompileTimeout  = 10 * time.Minute
	DefaultFFmpegBinary    = "ffmpeg"
	DefaultFFmpegFPS       = 25
	DefaultFFmpegSize      = "1280x720"
	DefaultRedisTTL        = 24 * time.Hour
	DefaultBucket          = "timeline-craft"

	CompilerFFmpeg = "ffmpeg"
	CompilerStub   = "stub"

	RefStoreLocal = "local"
	RefStoreMinio = "minio"
	RefStoreS3    = "s3"
)

type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	VideosDir() string
	ReferencesDir() string
	ExportsDir() string
	Headless() bool

	ImageServiceURL() string
	ImageServiceToken() string
	StyleHint() string
	GenerateTimeout() time.Duration
	CompileTimeout() time.Duration

	Compiler() string
	FFmpegBinary() string
	FFmpegFPS() int
	FFmpegSize() string

	RefStore() string
	MinioEndpoint() string
	MinioAccessKey() string
	MinioSecretKey() string
	MinioBucket() string
	MinioUseSSL() bool
	S3Bucket() string
	S3Region() string
	S3Profile() string
	S3PathStyle() bool

	RedisAddr() string
	RedisPassword() string
	RedisDB() int
	RedisTTL() time.Duration
}

// EnvConfig reads configuration from environment variables.
type EnvConfig struct {
	port     int
	logLevel string
	logFile  string
	dataDir  string
	headless bool

	imageServiceURL   string
	imageServiceToken string
	styleHint         string
	generateTimeout   time.Duration
	compileTimeout    time.Duration

	compiler     string
	ffmpegBinary string
	ffmpegFPS    int
	ffmpegSize   string

	refStore       string
	minioEndpoint  string
	minioAccessKey string
	minioSecretKey string
	minioBucket    string
	minioUseSSL    bool
	s3Bucket       string
	s3Region       string
	s3Profile      string
	s3PathStyle    bool

	redisAddr     string
	redisPassword string
	redisDB       int
	redisTTL      time.Duration
}

// New loads .env from the working directory if present, then creates an
// EnvConfig with defaults and environment overrides. Variables already set in
// the environment win over .env entries.
func New() (*EnvConfig, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return FromEnv()
}

// LoadDotEnv loads path into the process environment without overriding
// existing variables. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// FromEnv creates an EnvConfig from the current environment only.
func FromEnv() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		generateTimeout: DefaultGenerateTimeout,
		compileTimeout:  DefaultCompileTimeout,
		compiler:        CompilerStub,
		ffmpegBinary:    DefaultFFmpegBinary,
		ffmpegFPS:       DefaultFFmpegFPS,
		ffmpegSize:      DefaultFFmpegSize,
		refStore:        RefStoreLocal,
		minioBucket:     DefaultBucket,
		s3Bucket:        DefaultBucket,
		redisTTL:        DefaultRedisTTL,
	}

	var err error
	if cfg.port, err = envInt(EnvPort, cfg.port); err != nil {
		return nil, err
	}
	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}

	cfg.logLevel = envString(EnvLogLevel, cfg.logLevel)
	cfg.logFile = os.Getenv(EnvLogFile)
	cfg.dataDir = envString(EnvDataDir, cfg.dataDir)
	if cfg.headless, err = envBool(EnvHeadless, false); err != nil {
		return nil, err
	}

	cfg.imageServiceURL = strings.TrimRight(os.Getenv(EnvImageServiceURL), "/")
	cfg.imageServiceToken = os.Getenv(EnvImageServiceToken)
	cfg.styleHint = os.Getenv(EnvStyleHint)
	if cfg.generateTimeout, err = envDuration(EnvGenerateTimeout, cfg.generateTimeout); err != nil {
		return nil, err
	}
	if cfg.compileTimeout, err = envDuration(EnvCompileTimeout, cfg.compileTimeout); err != nil {
		return nil, err
	}

	cfg.compiler = strings.ToLower(envString(EnvCompiler, cfg.compiler))
	if cfg.compiler != CompilerFFmpeg && cfg.compiler != CompilerStub {
		return nil, fmt.Errorf("invalid %s: must be %s or %s", EnvCompiler, CompilerFFmpeg, CompilerStub)
	}
	cfg.ffmpegBinary = envString(EnvFFmpegBinary, cfg.ffmpegBinary)
	if cfg.ffmpegFPS, err = envInt(EnvFFmpegFPS, cfg.ffmpegFPS); err != nil {
		return nil, err
	}
	if cfg.ffmpegFPS < 1 || cfg.ffmpegFPS > 120 {
		return nil, fmt.Errorf("invalid %s: fps must be between 1 and 120", EnvFFmpegFPS)
	}
	cfg.ffmpegSize = envString(EnvFFmpegSize, cfg.ffmpegSize)
	if _, _, err := ParseSize(cfg.ffmpegSize); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvFFmpegSize, err)
	}

	cfg.refStore = strings.ToLower(envString(EnvRefStore, cfg.refStore))
	switch cfg.refStore {
	case RefStoreLocal, RefStoreMinio, RefStoreS3:
	default:
		return nil, fmt.Errorf("invalid %s: must be local, minio or s3", EnvRefStore)
	}
	cfg.minioEndpoint = os.Getenv(EnvMinioEndpoint)
	cfg.minioAccessKey = os.Getenv(EnvMinioAccessKey)
	cfg.minioSecretKey = os.Getenv(EnvMinioSecretKey)
	cfg.minioBucket = envString(EnvMinioBucket, cfg.minioBucket)
	if cfg.minioUseSSL, err = envBool(EnvMinioUseSSL, false); err != nil {
		return nil, err
	}
	if cfg.refStore == RefStoreMinio && cfg.minioEndpoint == "" {
		return nil, fmt.Errorf("%s is required when %s=minio", EnvMinioEndpoint, EnvRefStore)
	}
	cfg.s3Bucket = envString(EnvS3Bucket, cfg.s3Bucket)
	cfg.s3Region = os.Getenv(EnvS3Region)
	cfg.s3Profile = os.Getenv(EnvS3Profile)
	if cfg.s3PathStyle, err = envBool(EnvS3PathStyle, false); err != nil {
		return nil, err
	}

	cfg.redisAddr = os.Getenv(EnvRedisAddr)
	cfg.redisPassword = os.Getenv(EnvRedisPassword)
	if cfg.redisDB, err = envInt(EnvRedisDB, 0); err != nil {
		return nil, err
	}
	if cfg.redisTTL, err = envDuration(EnvRedisTTL, cfg.redisTTL); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) Port() int        { return c.port }
func (c *EnvConfig) LogLevel() string { return c.logLevel }
func (c *EnvConfig) LogFile() string  { return c.logFile }
func (c *EnvConfig) DataDir() string  { return c.dataDir }
func (c *EnvConfig) Headless() bool   { return c.headless }

// DBPath returns the full path to the SQLite database file.
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// VideosDir holds compiled videos and their scratch files.
func (c *EnvConfig) VideosDir() string {
	return filepath.Join(c.dataDir, "videos")
}

// ReferencesDir holds uploaded reference images for the local backend.
func (c *EnvConfig) ReferencesDir() string {
	return filepath.Join(c.dataDir, "references")
}

func (c *EnvConfig) ExportsDir() string {
	return filepath.Join(c.dataDir, "exports")
}

func (c *EnvConfig) ImageServiceURL() string        { return c.imageServiceURL }
func (c *EnvConfig) ImageServiceToken() string      { return c.imageServiceToken }
func (c *EnvConfig) StyleHint() string              { return c.styleHint }
func (c *EnvConfig) GenerateTimeout() time.Duration { return c.generateTimeout }
func (c *EnvConfig) CompileTimeout() time.Duration  { return c.compileTimeout }

func (c *EnvConfig) Compiler() string     { return c.compiler }
func (c *EnvConfig) FFmpegBinary() string { return c.ffmpegBinary }
func (c *EnvConfig) FFmpegFPS() int       { return c.ffmpegFPS }
func (c *EnvConfig) FFmpegSize() string   { return c.ffmpegSize }

func (c *EnvConfig) RefStore() string       { return c.refStore }
func (c *EnvConfig) MinioEndpoint() string  { return c.minioEndpoint }
func (c *EnvConfig) MinioAccessKey() string { return c.minioAccessKey }
func (c *EnvConfig) MinioSecretKey() string { return c.minioSecretKey }
func (c *EnvConfig) MinioBucket() string    { return c.minioBucket }
func (c *EnvConfig) MinioUseSSL() bool      { return c.minioUseSSL }
func (c *EnvConfig) S3Bucket() string       { return c.s3Bucket }
func (c *EnvConfig) S3Region() string       { return c.s3Region }
func (c *EnvConfig) S3Profile() string      { return c.s3Profile }
func (c *EnvConfig) S3PathStyle() bool      { return c.s3PathStyle }

func (c *EnvConfig) RedisAddr() string       { return c.redisAddr }
func (c *EnvConfig) RedisPassword() string   { return c.redisPassword }
func (c *EnvConfig) RedisDB() int            { return c.redisDB }
func (c *EnvConfig) RedisTTL() time.Duration { return c.redisTTL }

// ParseSize parses a WIDTHxHEIGHT frame size.
func ParseSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q is not WIDTHxHEIGHT", s)
	}
	if width, err = strconv.Atoi(w); err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("size %q has an invalid width", s)
	}
	if height, err = strconv.Atoi(h); err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("size %q has an invalid height", s)
	}
	// libx264 needs even dimensions.
	if width%2 != 0 || height%2 != 0 {
		return 0, 0, fmt.Errorf("size %q must have even dimensions", s)
	}
	return width, height, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
