package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"content-distributor/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App          App                    `json:"app"`
	Database     Database               `json:"database"`
	RedisClient  RedisClient            `json:"redisClient"`
	Pubsub       Pubsub                 `json:"pubsub"`
	Kafka        Kafka                  `json:"kafka"`
	ServiceBus   ServiceBus             `json:"serviceBus"`
	Scheduler    Scheduler              `json:"scheduler"`
	Distribution Distribution           `json:"distribution"`
	OAuth        map[string]OAuthClient `json:"oauth"`
	Platforms    map[string]Platform    `json:"platforms"`
	Telegram     Telegram               `json:"telegram"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
	// AllowedOrigins feeds CORS; empty allows any origin without credentials.
	AllowedOrigins []string `json:"allowedOrigins"`
}

type Database struct {
	Psql  Db      `json:"psql"`
	Mssql Db      `json:"mssql"`
	Mongo Db      `json:"mongo"`
	Audit AuditDb `json:"audit"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

// AuditDb selects the GORM dialect ("postgres" or "mysql") backing the publish audit log.
type AuditDb struct {
	Dialect string `json:"dialect"`
	DSN     string `json:"dsn"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	DB       int    `json:"db"`
}

type Pubsub struct {
	ProjectID      string `json:"projectID"`
	SubscriptionID string `json:"subscriptionID"`
}

type Kafka struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	GroupID string   `json:"groupID"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

// Scheduler configures the task queue backend and worker capacity per lane.
type Scheduler struct {
	Queue          string        `json:"queue"` // memory | redis
	KeyPrefix      string        `json:"keyPrefix"`
	DefaultWorkers int           `json:"defaultWorkers"`
	LowWorkers     int           `json:"lowWorkers"`
	PollInterval   time.Duration `json:"pollInterval"`
}

type Distribution struct {
	SiteBaseURL        string                   `json:"siteBaseURL"`
	Stagger            map[string]time.Duration `json:"stagger"`
	DefaultDelay       time.Duration            `json:"defaultDelay"`
	PublishMaxAttempts int                      `json:"publishMaxAttempts"`
	PublishBackoff     []time.Duration          `json:"publishBackoff"`
	TokenRefreshMargin time.Duration            `json:"tokenRefreshMargin"`
	MetricsCooldown    time.Duration            `json:"metricsCooldown"`
	MetricsSweepSpec   string                   `json:"metricsSweepSpec"`
	MetricsSweepWindow time.Duration            `json:"metricsSweepWindow"`
	StuckReportSpec    string                   `json:"stuckReportSpec"`
	StuckAfter         time.Duration            `json:"stuckAfter"`
}

// OAuthClient holds the client credentials used to refresh account tokens.
type OAuthClient struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	TokenURL     string   `json:"tokenURL"`
	AuthURL      string   `json:"authURL"`
	RedirectURL  string   `json:"redirectURL"`
	Scopes       []string `json:"scopes"`
}

// Platform tunes one adapter: API location, pacing and task timeout.
type Platform struct {
	BaseURL      string        `json:"baseURL"`
	RateLimit    float64       `json:"rateLimit"` // requests per second, 0 disables pacing
	Burst        int           `json:"burst"`
	Timeout      time.Duration `json:"timeout"`
	PollInterval time.Duration `json:"pollInterval"`
	PollAttempts int           `json:"pollAttempts"`
	ChunkSize    int64         `json:"chunkSize"`
}

type Telegram struct {
	BotToken  string `json:"botToken"`
	ChannelID string `json:"channelId"`
	APIURL    string `json:"apiURL"`
}

var C Config

func init() {
	Reload()
}

// Reload rebuilds C from the config file and the current environment.
func Reload() {
	C = Config{}
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initSecrets(&C)
	ApplyDefaults(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	setIfEmpty(&C.Database.Psql.Name, os.Getenv("DB_NAME"))
	setIfEmpty(&C.Database.Psql.Host, os.Getenv("DB_HOST"))
	setIfEmpty(&C.Database.Psql.Port, os.Getenv("DB_PORT"))
	setIfEmpty(&C.Database.Psql.User, os.Getenv("DB_USER"))
	setIfEmpty(&C.Database.Psql.Password, os.Getenv("DB_PASSWORD"))
	setIfEmpty(&C.Database.Psql.SSLMode, "disable")

	// Optional MSSQL account store (Azure SQL in production)
	setIfEmpty(&C.Database.Mssql.Name, os.Getenv("MSSQL_DB_NAME"))
	setIfEmpty(&C.Database.Mssql.Host, os.Getenv("MSSQL_HOST"))
	setIfEmpty(&C.Database.Mssql.Port, os.Getenv("MSSQL_PORT"))
	setIfEmpty(&C.Database.Mssql.User, os.Getenv("MSSQL_USER"))
	setIfEmpty(&C.Database.Mssql.Password, os.Getenv("MSSQL_PASSWORD"))
	setIfEmpty(&C.Database.Mssql.Port, "1433")

	setIfEmpty(&C.Database.Mongo.Host, os.Getenv("MONGO_HOST"))
	setIfEmpty(&C.Database.Mongo.Name, os.Getenv("MONGO_DB_NAME"))
	setIfEmpty(&C.Database.Audit.DSN, os.Getenv("AUDIT_DSN"))
	setIfEmpty(&C.Database.Audit.Dialect, "postgres")

	logger.GetLogger().WithFields(map[string]interface{}{
		"psqlHost":  C.Database.Psql.Host,
		"mssqlHost": C.Database.Mssql.Host,
		"mongoHost": C.Database.Mongo.Host,
	}).Info("Database configuration")
}

func initApp(C *Config) {
	// SECRET_KEY from the environment overrides the config file for JWT verification
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order: APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	setIfEmpty(&C.App.TLSCertFile, os.Getenv("TLS_CERT_FILE"))
	setIfEmpty(&C.App.TLSKeyFile, os.Getenv("TLS_KEY_FILE"))
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

// initSecrets pulls credentials that never live in config files.
func initSecrets(C *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		C.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_ID"); v != "" {
		C.Telegram.ChannelID = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		C.RedisClient.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		C.Kafka.Brokers = strings.Split(v, ",")
	}
	setIfEmpty(&C.Pubsub.ProjectID, os.Getenv("PUBSUB_PROJECT_ID"))
	setIfEmpty(&C.ServiceBus.Namespace, os.Getenv("SERVICEBUS_NAMESPACE"))

	if C.OAuth == nil {
		C.OAuth = map[string]OAuthClient{}
	}
	for _, platform := range []string{"facebook", "linkedin", "twitter", "reddit", "youtube", "tiktok", "instagram", "threads"} {
		prefix := strings.ToUpper(platform)
		client := C.OAuth[platform]
		if v := os.Getenv(prefix + "_CLIENT_ID"); v != "" {
			client.ClientID = v
		}
		if v := os.Getenv(prefix + "_CLIENT_SECRET"); v != "" {
			client.ClientSecret = v
		}
		C.OAuth[platform] = client
	}
}

// DefaultStagger is the per-platform start offset used when the config file has none.
func DefaultStagger() map[string]time.Duration {
	return map[string]time.Duration{
		"telegram":  10 * time.Second,
		"facebook":  15 * time.Second,
		"linkedin":  20 * time.Second,
		"twitter":   30 * time.Second,
		"reddit":    35 * time.Second,
		"instagram": 40 * time.Second,
		"threads":   45 * time.Second,
		"tiktok":    50 * time.Second,
		"youtube":   60 * time.Second,
	}
}

// DefaultPlatforms is the per-platform attempt budget. Container platforms poll
// for up to PollAttempts*PollInterval, so their Timeout leaves room for the
// create and publish calls around the wait.
func DefaultPlatforms() map[string]Platform {
	simple := Platform{Timeout: time.Minute}
	media := Platform{Timeout: 6 * time.Minute, PollInterval: 10 * time.Second, PollAttempts: 30}
	return map[string]Platform{
		"facebook":  simple,
		"linkedin":  simple,
		"twitter":   simple,
		"reddit":    simple,
		"telegram":  {Timeout: 2 * time.Minute},
		"instagram": media,
		"threads":   media,
		"tiktok":    media,
		"youtube":   {Timeout: 10 * time.Minute, PollInterval: 10 * time.Second, PollAttempts: 30},
	}
}

// ApplyDefaults fills every zero value that has a sensible default.
func ApplyDefaults(C *Config) {
	if len(C.Distribution.Stagger) == 0 {
		C.Distribution.Stagger = DefaultStagger()
	}
	if C.Distribution.DefaultDelay == 0 {
		C.Distribution.DefaultDelay = 30 * time.Second
	}
	if C.Distribution.PublishMaxAttempts == 0 {
		C.Distribution.PublishMaxAttempts = 3
	}
	if len(C.Distribution.PublishBackoff) == 0 {
		C.Distribution.PublishBackoff = []time.Duration{time.Minute, 5 * time.Minute}
	}
	if C.Distribution.TokenRefreshMargin == 0 {
		C.Distribution.TokenRefreshMargin = 5 * time.Minute
	}
	if C.Distribution.MetricsCooldown == 0 {
		C.Distribution.MetricsCooldown = time.Hour
	}
	if C.Distribution.MetricsSweepSpec == "" {
		C.Distribution.MetricsSweepSpec = "@every 6h"
	}
	if C.Distribution.MetricsSweepWindow == 0 {
		C.Distribution.MetricsSweepWindow = 7 * 24 * time.Hour
	}
	if C.Distribution.StuckReportSpec == "" {
		C.Distribution.StuckReportSpec = "@every 30m"
	}
	if C.Distribution.StuckAfter == 0 {
		C.Distribution.StuckAfter = time.Hour
	}

	if C.Scheduler.Queue == "" {
		// queued tasks only survive a restart in redis
		C.Scheduler.Queue = "memory"
		if C.RedisClient.Host != "" {
			C.Scheduler.Queue = "redis"
		}
	}
	if C.Scheduler.KeyPrefix == "" {
		C.Scheduler.KeyPrefix = "distributor"
	}
	if C.Scheduler.DefaultWorkers == 0 {
		C.Scheduler.DefaultWorkers = 8
	}
	if C.Scheduler.LowWorkers == 0 {
		C.Scheduler.LowWorkers = 2
	}
	if C.Scheduler.PollInterval == 0 {
		C.Scheduler.PollInterval = time.Second
	}

	if C.Telegram.APIURL == "" {
		C.Telegram.APIURL = "https://api.telegram.org"
	}
	if C.Kafka.Topic == "" {
		C.Kafka.Topic = "content.ready"
	}
	if C.Kafka.GroupID == "" {
		C.Kafka.GroupID = "content-distributor"
	}
	if C.ServiceBus.Queue == "" {
		C.ServiceBus.Queue = "publish-status"
	}
	if C.Platforms == nil {
		C.Platforms = map[string]Platform{}
	}
	for name, d := range DefaultPlatforms() {
		p := C.Platforms[name]
		if p.Timeout == 0 {
			p.Timeout = d.Timeout
		}
		if p.PollInterval == 0 {
			p.PollInterval = d.PollInterval
		}
		if p.PollAttempts == 0 {
			p.PollAttempts = d.PollAttempts
		}
		C.Platforms[name] = p
	}
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
