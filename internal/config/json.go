package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration accepts either a string such as "1s" or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch tv := v.(type) {
	case float64:
		d.Duration = time.Duration(tv)
	case string:
		p, err := time.ParseDuration(tv)
		if err != nil {
			return err
		}
		d.Duration = p
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// JsonConfig is the JSON file layout. Absent fields leave the current value
// untouched.
type JsonConfig struct {
	RedisAddr        *string   `json:"redis_addr"`
	RedisPassword    *string   `json:"redis_password"`
	RedisDB          *int      `json:"redis_db"`
	KeyPrefix        *string   `json:"key_prefix"`
	DialTimeout      *Duration `json:"dial_timeout"`
	OperationTimeout *Duration `json:"operation_timeout"`
	LogLevel         *string   `json:"log_level"`
	LogFormat        *string   `json:"log_format"`
	AMQPURL          *string   `json:"amqp_url"`
	AMQPQueue        *string   `json:"amqp_queue"`
	S3Bucket         *string   `json:"s3_bucket"`
	S3Region         *string   `json:"s3_region"`
	S3BaseEndpoint   *string   `json:"s3_base_endpoint"`
	S3RootUser       *string   `json:"s3_root_user"`
	S3RootPassword   *string   `json:"s3_root_password"`
	S3Prefix         *string   `json:"s3_prefix"`
}

func parseJSON(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var j JsonConfig
	if err := json.Unmarshal(b, &j); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.RedisAddr, j.RedisAddr)
	setString(&cfg.RedisPassword, j.RedisPassword)
	if j.RedisDB != nil {
		cfg.RedisDB = *j.RedisDB
	}
	setString(&cfg.KeyPrefix, j.KeyPrefix)
	if j.DialTimeout != nil {
		cfg.DialTimeout = j.DialTimeout.Duration
	}
	if j.OperationTimeout != nil {
		cfg.OperationTimeout = j.OperationTimeout.Duration
	}
	setString(&cfg.LogLevel, j.LogLevel)
	setString(&cfg.LogFormat, j.LogFormat)
	setString(&cfg.AMQPURL, j.AMQPURL)
	setString(&cfg.AMQPQueue, j.AMQPQueue)
	setString(&cfg.S3Bucket, j.S3Bucket)
	setString(&cfg.S3Region, j.S3Region)
	setString(&cfg.S3BaseEndpoint, j.S3BaseEndpoint)
	setString(&cfg.S3RootUser, j.S3RootUser)
	setString(&cfg.S3RootPassword, j.S3RootPassword)
	setString(&cfg.S3Prefix, j.S3Prefix)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
