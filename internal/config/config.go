package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the api process and the operator CLI.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Telephony     TelephonyConfig
	Understanding UnderstandingConfig
	Storage       StorageConfig
	Scheduler     SchedulerConfig
	Queue         QueueConfig
	Media         MediaConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TelephonyConfig struct {
	BaseURL       string
	APIKey        string
	AgentID       string
	FromNumber    string
	WebhookSecret string

	// RecordingHosts lists hosts whose recording URLs expire and must be copied
	// to durable storage.
	RecordingHosts []string
}

type UnderstandingConfig struct {
	BaseURL string
	APIKey  string
}

type StorageConfig struct {
	// Provider is s3 or filesystem.
	Provider        string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type SchedulerConfig struct {
	Timezone       string
	OperatingStart string
	OperatingEnd   string
	TickInterval   time.Duration
	InterCallDelay time.Duration
	SafetyFloor    time.Duration
}

type QueueConfig struct {
	Concurrency      int
	MaxAttempts      int
	BackoffBase      time.Duration
	CompletedHistory int
	FailedHistory    int
}

type MediaConfig struct {
	FFmpegPath string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")

	c.Telephony.BaseURL = strings.TrimSpace(os.Getenv("TELEPHONY_BASE_URL"))
	c.Telephony.APIKey = os.Getenv("TELEPHONY_API_KEY")
	c.Telephony.AgentID = strings.TrimSpace(os.Getenv("TELEPHONY_AGENT_ID"))
	c.Telephony.FromNumber = strings.TrimSpace(os.Getenv("TELEPHONY_FROM_NUMBER"))
	c.Telephony.WebhookSecret = os.Getenv("TELEPHONY_WEBHOOK_SECRET")
	c.Telephony.RecordingHosts = splitList(os.Getenv("TELEPHONY_RECORDING_HOSTS"))

	c.Understanding.BaseURL = strings.TrimSpace(os.Getenv("UNDERSTANDING_BASE_URL"))
	c.Understanding.APIKey = os.Getenv("UNDERSTANDING_API_KEY")

	c.Storage.Provider = strings.TrimSpace(os.Getenv("STORAGE_PROVIDER"))
	c.Storage.Bucket = strings.TrimSpace(os.Getenv("STORAGE_BUCKET"))
	c.Storage.Region = strings.TrimSpace(os.Getenv("STORAGE_REGION"))
	c.Storage.Endpoint = strings.TrimSpace(os.Getenv("STORAGE_ENDPOINT"))
	c.Storage.AccessKeyID = strings.TrimSpace(os.Getenv("STORAGE_ACCESS_KEY_ID"))
	c.Storage.SecretAccessKey = os.Getenv("STORAGE_SECRET_ACCESS_KEY")
	c.Storage.PublicBaseURL = strings.TrimSpace(os.Getenv("STORAGE_PUBLIC_BASE_URL"))

	c.Scheduler.Timezone = strings.TrimSpace(os.Getenv("SCHEDULER_TIMEZONE"))
	c.Scheduler.OperatingStart = strings.TrimSpace(os.Getenv("SCHEDULER_OPERATING_START"))
	c.Scheduler.OperatingEnd = strings.TrimSpace(os.Getenv("SCHEDULER_OPERATING_END"))
	c.Scheduler.TickInterval, parseErrs = optionalDuration(parseErrs, "SCHEDULER_TICK_INTERVAL")
	c.Scheduler.InterCallDelay, parseErrs = optionalDuration(parseErrs, "SCHEDULER_INTER_CALL_DELAY")
	c.Scheduler.SafetyFloor, parseErrs = optionalDuration(parseErrs, "SCHEDULER_SAFETY_FLOOR")

	c.Queue.Concurrency, parseErrs = optionalInt(parseErrs, "WORKER_CONCURRENCY")
	c.Queue.MaxAttempts, parseErrs = optionalInt(parseErrs, "QUEUE_MAX_ATTEMPTS")
	c.Queue.BackoffBase, parseErrs = optionalDuration(parseErrs, "QUEUE_BACKOFF_BASE")
	c.Queue.CompletedHistory, parseErrs = optionalInt(parseErrs, "QUEUE_COMPLETED_HISTORY")
	c.Queue.FailedHistory, parseErrs = optionalInt(parseErrs, "QUEUE_FAILED_HISTORY")

	c.Media.FFmpegPath = strings.TrimSpace(os.Getenv("MEDIA_FFMPEG_PATH"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	errs = append(errs, c.validateTelephony()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateScheduler()...)
	errs = append(errs, c.validateQueue()...)

	if c.Understanding.BaseURL == "" {
		errs = append(errs, errors.New("UNDERSTANDING_BASE_URL is required"))
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}

	return joinErrors(errs)
}

func (c *Config) validateTelephony() []error {
	var errs []error
	if c.Telephony.BaseURL == "" {
		errs = append(errs, errors.New("TELEPHONY_BASE_URL is required"))
	}
	if c.Telephony.APIKey == "" {
		errs = append(errs, errors.New("TELEPHONY_API_KEY is required"))
	}
	if c.Telephony.AgentID == "" {
		errs = append(errs, errors.New("TELEPHONY_AGENT_ID is required"))
	}
	if c.Telephony.FromNumber == "" {
		errs = append(errs, errors.New("TELEPHONY_FROM_NUMBER is required"))
	}
	// An empty secret would accept any body signed with the empty key.
	if c.Telephony.WebhookSecret == "" {
		errs = append(errs, errors.New("TELEPHONY_WEBHOOK_SECRET is required"))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	switch c.Storage.Provider {
	case "":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORAGE_PROVIDER is required in production"))
		} else {
			c.Storage.Provider = "filesystem"
		}
	case "s3", "filesystem":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_PROVIDER must be one of s3, filesystem, got %q", c.Storage.Provider))
	}

	switch c.Storage.Provider {
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("STORAGE_BUCKET is required for s3"))
		}
		if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			errs = append(errs, errors.New("STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY are required for s3"))
		}
		if c.Storage.Region == "" {
			c.Storage.Region = "us-east-1"
		}
	case "filesystem":
		if c.Storage.Bucket == "" {
			c.Storage.Bucket = "./data/recordings"
		}
	}
	return errs
}

func (c *Config) validateScheduler() []error {
	var errs []error
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_TIMEZONE is invalid: %v", err))
	}
	if c.Scheduler.OperatingStart == "" {
		c.Scheduler.OperatingStart = "09:00"
	}
	if c.Scheduler.OperatingEnd == "" {
		c.Scheduler.OperatingEnd = "20:00"
	}
	start, errStart := parseClock(c.Scheduler.OperatingStart)
	if errStart != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_OPERATING_START: %v", errStart))
	}
	end, errEnd := parseClock(c.Scheduler.OperatingEnd)
	if errEnd != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_OPERATING_END: %v", errEnd))
	}
	if errStart == nil && errEnd == nil && end <= start {
		errs = append(errs, errors.New("SCHEDULER_OPERATING_END must be after SCHEDULER_OPERATING_START"))
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = 15 * time.Minute
	}
	if c.Scheduler.InterCallDelay <= 0 {
		c.Scheduler.InterCallDelay = 30 * time.Second
	}
	if c.Scheduler.SafetyFloor <= 0 {
		c.Scheduler.SafetyFloor = 8 * time.Hour
	}
	return errs
}

func (c *Config) validateQueue() []error {
	var errs []error
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 5
	}
	if c.Queue.Concurrency < 0 || c.Queue.Concurrency > 100 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.Queue.Concurrency))
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive, got %d", c.Queue.MaxAttempts))
	}
	if c.Queue.BackoffBase <= 0 {
		c.Queue.BackoffBase = 30 * time.Second
	}
	if c.Queue.CompletedHistory <= 0 {
		c.Queue.CompletedHistory = 100
	}
	if c.Queue.FailedHistory <= 0 {
		c.Queue.FailedHistory = 1000
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Location returns the scheduler's local clock. Validate must have succeeded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

// optionalDuration returns 0 for unset keys so Validate can apply defaults.
func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// parseClock parses HH:MM into minutes after midnight.
func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("must be HH:MM, got %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
