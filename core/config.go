package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		DisableReqLogs     bool
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Engine string // postgres | memory
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	CacheConfig struct {
		Enabled bool
		TTL     time.Duration
	}

	KafkaConfig struct {
		Enabled     bool
		Brokers     []string
		ClientID    string
		TopicPrefix string
	}

	GatewayConfig struct {
		Name             string
		BaseURL          string
		MerchantID       string
		SaltKey          string
		SaltIndex        int
		RedirectURL      string
		CallbackURL      string
		Timeout          time.Duration
		StatusCheckDelay time.Duration
		PollInterval     time.Duration
	}

	JobsConfig struct {
		Enabled        bool
		Concurrency    int
		ExpireSchedule string
		StaleAfter     time.Duration
	}

	Config struct {
		Env           string
		Build         string
		Debug         bool
		TestMode      bool
		AppName       string
		SecretKey     string
		RollbarToken  string
		SnowflakeNode int64

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Redis    RedisConfig
		Cache    CacheConfig
		Kafka    KafkaConfig
		Gateway  GatewayConfig
		Jobs     JobsConfig
	}
)

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Pariksha")
	v.SetDefault("secretKey", "p7$w!k2-x0q_9a=lms@dev+jz4^m#c8r(f1t)yv6e&n3h")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("snowflakeNode", 1)

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pariksha")
	v.SetDefault("database.user", "pariksha")
	v.SetDefault("database.password", "pariksha")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("storage.engine", "postgres")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.clientID", "pariksha-api")
	v.SetDefault("kafka.topicPrefix", "lms.")

	v.SetDefault("gateway.name", "phonepe")
	v.SetDefault("gateway.baseURL", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("gateway.merchantID", "")
	v.SetDefault("gateway.saltKey", "")
	v.SetDefault("gateway.saltIndex", 1)
	v.SetDefault("gateway.redirectURL", "http://localhost:8000/v1/payments/redirect")
	v.SetDefault("gateway.callbackURL", "http://localhost:8000/v1/payments/callback")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.statusCheckDelay", 15*time.Minute)
	v.SetDefault("gateway.pollInterval", 10*time.Second)

	v.SetDefault("jobs.enabled", false)
	v.SetDefault("jobs.concurrency", 10)
	v.SetDefault("jobs.expireSchedule", "@daily")
	v.SetDefault("jobs.staleAfter", 30*time.Minute)
}

// NewConfig loads the configuration for the current ENV (DEV (default), TEST, QA, PROD).
// Values come from defaults, then `config/.env.<env>` if it exists, then the environment:
// e.g. DEV_SERVER_ADDRESS overrides "server.address" in DEV.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("storage.engine", "memory")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:           env,
		Build:         v.GetString("build"),
		Debug:         v.GetBool("debug"),
		TestMode:      v.GetBool("testMode"),
		AppName:       v.GetString("appName"),
		SecretKey:     v.GetString("secretKey"),
		RollbarToken:  v.GetString("rollbarToken"),
		SnowflakeNode: v.GetInt64("snowflakeNode"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Storage: StorageConfig{
			Engine: v.GetString("storage.engine"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			TTL:     v.GetDuration("cache.ttl"),
		},
		Kafka: KafkaConfig{
			Enabled:     v.GetBool("kafka.enabled"),
			Brokers:     v.GetStringSlice("kafka.brokers"),
			ClientID:    v.GetString("kafka.clientID"),
			TopicPrefix: v.GetString("kafka.topicPrefix"),
		},
		Gateway: GatewayConfig{
			Name:             v.GetString("gateway.name"),
			BaseURL:          v.GetString("gateway.baseURL"),
			MerchantID:       v.GetString("gateway.merchantID"),
			SaltKey:          v.GetString("gateway.saltKey"),
			SaltIndex:        v.GetInt("gateway.saltIndex"),
			RedirectURL:      v.GetString("gateway.redirectURL"),
			CallbackURL:      v.GetString("gateway.callbackURL"),
			Timeout:          v.GetDuration("gateway.timeout"),
			StatusCheckDelay: v.GetDuration("gateway.statusCheckDelay"),
			PollInterval:     v.GetDuration("gateway.pollInterval"),
		},
		Jobs: JobsConfig{
			Enabled:        v.GetBool("jobs.enabled"),
			Concurrency:    v.GetInt("jobs.concurrency"),
			ExpireSchedule: v.GetString("jobs.expireSchedule"),
			StaleAfter:     v.GetDuration("jobs.staleAfter"),
		},
	}
}
