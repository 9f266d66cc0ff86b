package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/identity/internal/flagx"
	"github.com/dmitrijs2005/identity/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept strings such as "15m" or integer nanoseconds. Pointer and zero
// values mean "not set" and leave the current value untouched.
type JsonConfig struct {
	EndpointAddrHTTP    string `json:"endpoint_addr_http"`
	EndpointAddrGRPC    string `json:"endpoint_addr_grpc"`
	EndpointAddrMetrics string `json:"endpoint_addr_metrics"`

	DatabaseDriver    string         `json:"database_driver"`
	DatabaseDSN       string         `json:"database_dsn"`
	DBMaxOpenConns    int            `json:"db_max_open_conns"`
	DBMaxIdleConns    int            `json:"db_max_idle_conns"`
	DBConnMaxLifetime timex.Duration `json:"db_conn_max_lifetime"`
	StoreTimeout      timex.Duration `json:"store_timeout"`
	AutoMigrate       *bool          `json:"auto_migrate"`

	SecretKey                    string         `json:"secret_key"`
	TokenIssuer                  string         `json:"token_issuer"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	PasswordHasher string `json:"password_hasher"`
	BcryptCost     int    `json:"bcrypt_cost"`

	EventBus     string   `json:"event_bus"`
	KafkaBrokers []string `json:"kafka_brokers"`
	AMQPURL      string   `json:"amqp_url"`
	EventWorkers int      `json:"event_workers"`
	EventBuffer  int      `json:"event_buffer"`

	RateLimitBurst int     `json:"rate_limit_burst"`
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RedisAddr      string  `json:"redis_addr"`
	RedisPassword  string  `json:"redis_password"`
	RedisDB        int     `json:"redis_db"`

	OTLPEndpoint    string         `json:"otlp_endpoint"`
	PurgeInterval   timex.Duration `json:"token_purge_interval"`
	RequestTimeout  timex.Duration `json:"request_timeout"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
	LogLevel        string         `json:"log_level"`
}

// parseJson overlays the file named by -c / -config onto config. Without
// the flag nothing is loaded.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrMetrics, c.EndpointAddrMetrics)

	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setInt(&config.DBMaxOpenConns, c.DBMaxOpenConns)
	setInt(&config.DBMaxIdleConns, c.DBMaxIdleConns)
	setDuration(&config.DBConnMaxLifetime, c.DBConnMaxLifetime)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	if c.AutoMigrate != nil {
		config.AutoMigrate = *c.AutoMigrate
	}

	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)

	setString(&config.PasswordHasher, c.PasswordHasher)
	setInt(&config.BcryptCost, c.BcryptCost)

	setString(&config.EventBus, c.EventBus)
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.AMQPURL, c.AMQPURL)
	setInt(&config.EventWorkers, c.EventWorkers)
	setInt(&config.EventBuffer, c.EventBuffer)

	setInt(&config.RateLimitBurst, c.RateLimitBurst)
	if c.RateLimitRPS > 0 {
		config.RateLimitRPS = c.RateLimitRPS
	}
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)

	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
	setDuration(&config.PurgeInterval, c.PurgeInterval)
	setDuration(&config.RequestTimeout, c.RequestTimeout)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
