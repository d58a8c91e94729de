package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags declares the configuration flags on fs. Defaults shown in
// help are the built-in ones; only flags given on the command line override
// the loaded configuration.
func RegisterFlags(fs *pflag.FlagSet) {
	d := &Config{}
	d.LoadDefaults()

	fs.String("redis-addr", d.RedisAddr, "redis address (host:port)")
	fs.String("redis-password", "", "redis password")
	fs.Int("redis-db", d.RedisDB, "redis database number")
	fs.String("key-prefix", "", "prefix for every store key")
	fs.Duration("dial-timeout", d.DialTimeout, "store dial timeout")
	fs.Duration("operation-timeout", d.OperationTimeout, "store read/write timeout")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: json or text (default: text on a terminal)")
	fs.String("amqp-url", "", "AMQP broker URL for lifecycle events (empty disables)")
	fs.String("amqp-queue", d.AMQPQueue, "AMQP queue for lifecycle events")
	fs.String("s3-bucket", "", "snapshot export bucket")
	fs.String("s3-region", d.S3Region, "snapshot export region")
	fs.String("s3-endpoint", "", "S3-compatible endpoint, e.g. http://127.0.0.1:9000")
	fs.String("s3-user", "", "S3 access key")
	fs.String("s3-password", "", "S3 secret key")
	fs.String("s3-prefix", d.S3Prefix, "snapshot object key prefix")
}

// ApplyFlags copies the flags set on fs into cfg.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"redis-addr":     &cfg.RedisAddr,
		"redis-password": &cfg.RedisPassword,
		"key-prefix":     &cfg.KeyPrefix,
		"log-level":      &cfg.LogLevel,
		"log-format":     &cfg.LogFormat,
		"amqp-url":       &cfg.AMQPURL,
		"amqp-queue":     &cfg.AMQPQueue,
		"s3-bucket":      &cfg.S3Bucket,
		"s3-region":      &cfg.S3Region,
		"s3-endpoint":    &cfg.S3BaseEndpoint,
		"s3-user":        &cfg.S3RootUser,
		"s3-password":    &cfg.S3RootPassword,
		"s3-prefix":      &cfg.S3Prefix,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed("redis-db") {
		v, err := fs.GetInt("redis-db")
		if err != nil {
			return err
		}
		cfg.RedisDB = v
	}
	if fs.Changed("dial-timeout") {
		v, err := fs.GetDuration("dial-timeout")
		if err != nil {
			return err
		}
		cfg.DialTimeout = v
	}
	if fs.Changed("operation-timeout") {
		v, err := fs.GetDuration("operation-timeout")
		if err != nil {
			return err
		}
		cfg.OperationTimeout = v
	}
	return nil
}
