package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/libsync/internal/flagx"
	"github.com/dmitrijs2005/libsync/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Intervals use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP     string         `json:"endpoint_addr_http"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	StorageRoot          string         `json:"storage_root"`
	SignedURLTTL         timex.Duration `json:"signed_url_ttl"`
	MaxFileSize          int64          `json:"max_file_size"`
	MaxBatchSize         int64          `json:"max_batch_size"`
	MaxParallelTransfers int            `json:"max_parallel_transfers"`
	RedisAddr            string         `json:"redis_addr"`
	RateLimitPerMinute   int            `json:"rate_limit_per_minute"`
	SweepSchedule        string         `json:"sweep_schedule"`
	DefaultPlan          string         `json:"default_plan"`
	LogFile              string         `json:"log_file"`
}

// parseJson overlays values from the file named by -c/-config (or the
// LIBSYNC_CONFIG environment variable). Only fields present with a non-zero
// value replace what is already in config. Unreadable files and invalid JSON
// panic, as a misconfigured server must not start.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.StorageRoot, c.StorageRoot)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.SweepSchedule, c.SweepSchedule)
	setString(&config.DefaultPlan, c.DefaultPlan)
	setString(&config.LogFile, c.LogFile)

	if c.SignedURLTTL.Duration > 0 {
		config.SignedURLTTL = c.SignedURLTTL.Duration
	}
	if c.MaxFileSize > 0 {
		config.MaxFileSize = c.MaxFileSize
	}
	if c.MaxBatchSize > 0 {
		config.MaxBatchSize = c.MaxBatchSize
	}
	if c.MaxParallelTransfers > 0 {
		config.MaxParallelTransfers = c.MaxParallelTransfers
	}
	if c.RateLimitPerMinute > 0 {
		config.RateLimitPerMinute = c.RateLimitPerMinute
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
