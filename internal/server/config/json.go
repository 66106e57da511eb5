package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/subkeeper/internal/flagx"
	"github.com/dmitrijs2005/subkeeper/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations use timex.Duration so
// both "168h" and integer nanoseconds are accepted. Zero values in the file
// leave the corresponding Config field unchanged.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	HealthAddrGRPC               string         `json:"health_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	SessionTokenValidityDuration timex.Duration `json:"session_token_validity_duration"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_validity_duration"`
	DBMaxOpenConns               int            `json:"db_max_open_conns"`
	DBMaxIdleConns               int            `json:"db_max_idle_conns"`
	DBAcquireTimeout             timex.Duration `json:"db_acquire_timeout"`
	Production                   *bool          `json:"production"`
	CORSOrigin                   string         `json:"cors_origin"`
	AdminUserID                  string         `json:"admin_user_id"`
	AppBaseURL                   string         `json:"app_base_url"`
	SMTPHost                     string         `json:"smtp_host"`
	SMTPPort                     int            `json:"smtp_port"`
	SMTPUsername                 string         `json:"smtp_username"`
	SMTPPassword                 string         `json:"smtp_password"`
	SMTPFrom                     string         `json:"smtp_from"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	AMQPURL                      string         `json:"amqp_url"`
	AMQPExchange                 string         `json:"amqp_exchange"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag. Without the flag nothing is loaded. An unreadable file or
// invalid JSON panics: a broken config file is a startup error.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.HealthAddrGRPC, c.HealthAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.CORSOrigin, c.CORSOrigin)
	setString(&config.AdminUserID, c.AdminUserID)
	setString(&config.AppBaseURL, c.AppBaseURL)
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPExchange, c.AMQPExchange)

	if c.SessionTokenValidityDuration.Duration > 0 {
		config.SessionTokenValidityDuration = c.SessionTokenValidityDuration.Duration
	}
	if c.ResetTokenValidityDuration.Duration > 0 {
		config.ResetTokenValidityDuration = c.ResetTokenValidityDuration.Duration
	}
	if c.DBAcquireTimeout.Duration > 0 {
		config.DBAcquireTimeout = c.DBAcquireTimeout.Duration
	}
	if c.DBMaxOpenConns > 0 {
		config.DBMaxOpenConns = c.DBMaxOpenConns
	}
	if c.DBMaxIdleConns > 0 {
		config.DBMaxIdleConns = c.DBMaxIdleConns
	}
	if c.SMTPPort > 0 {
		config.SMTPPort = c.SMTPPort
	}
	if c.Production != nil {
		config.Production = *c.Production
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
