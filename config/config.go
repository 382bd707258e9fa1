// Package config loads the transfer and logging settings of a node from
// flags, WIRE_* environment variables, .env files and an optional config
// file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/oy3o/wire/chunk"
	"github.com/oy3o/wire/log"
)

// EnvPrefix is prepended to every environment key, e.g. WIRE_CHUNK_SIZE.
const EnvPrefix = "wire"

// Keys shared by flags, environment and config files.
const (
	KeyChunkSize       = "chunk-size"
	KeyTransferTimeout = "transfer-timeout"
	KeySessionTimeout  = "session-timeout"
	KeyRetention       = "retention"
	KeySpoolDir        = "spool-dir"
	KeyCompression     = "compression"
	KeyMaxCallbacks    = "max-callbacks"
	KeySendRetries     = "send-retries"
	KeyLogLevel        = "log-level"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	ChunkSize       int
	TransferTimeout time.Duration
	SessionTimeout  time.Duration
	Retention       time.Duration
	SpoolDir        string
	Compression     bool
	MaxCallbacks    int
	SendRetries     int
	LogLevel        string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		ChunkSize:       chunk.DefaultChunkSize,
		TransferTimeout: time.Minute,
		SessionTimeout:  chunk.DefaultSessionTimeout,
		Retention:       chunk.DefaultRetention,
		MaxCallbacks:    chunk.DefaultMaxCallbacks,
		SendRetries:     chunk.DefaultSendRetries,
		LogLevel:        log.InfoLevel.String(),
	}
}

// New returns a viper instance reading .env files and WIRE_* variables,
// with every key defaulted.
func New() *viper.Viper {
	// missing env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeyChunkSize, d.ChunkSize)
	v.SetDefault(KeyTransferTimeout, d.TransferTimeout)
	v.SetDefault(KeySessionTimeout, d.SessionTimeout)
	v.SetDefault(KeyRetention, d.Retention)
	v.SetDefault(KeySpoolDir, d.SpoolDir)
	v.SetDefault(KeyCompression, d.Compression)
	v.SetDefault(KeyMaxCallbacks, d.MaxCallbacks)
	v.SetDefault(KeySendRetries, d.SendRetries)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	return v
}

// Load reads file into v when given and returns the validated settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	c := Config{
		ChunkSize:       v.GetInt(KeyChunkSize),
		TransferTimeout: v.GetDuration(KeyTransferTimeout),
		SessionTimeout:  v.GetDuration(KeySessionTimeout),
		Retention:       v.GetDuration(KeyRetention),
		SpoolDir:        v.GetString(KeySpoolDir),
		Compression:     v.GetBool(KeyCompression),
		MaxCallbacks:    v.GetInt(KeyMaxCallbacks),
		SendRetries:     v.GetInt(KeySendRetries),
		LogLevel:        v.GetString(KeyLogLevel),
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0 || c.ChunkSize > chunk.MaxPayloadLen:
		return fmt.Errorf("%w: %s %d out of range (0, %d]", ErrInvalid, KeyChunkSize, c.ChunkSize, chunk.MaxPayloadLen)
	case c.TransferTimeout <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyTransferTimeout)
	case c.SessionTimeout <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, KeySessionTimeout)
	case c.Retention < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyRetention)
	case c.MaxCallbacks <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyMaxCallbacks)
	case c.SendRetries <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, KeySendRetries)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Logger returns a zap logger at the configured level.
func (c Config) Logger(w io.Writer) log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewZap(level, w)
}

// ChunkOptions converts the settings to sender and receiver options.
func (c Config) ChunkOptions(logger log.Logger) []chunk.Option {
	return []chunk.Option{
		chunk.WithChunkSize(c.ChunkSize),
		chunk.WithCompression(c.Compression),
		chunk.WithRetry(c.SendRetries, 50*time.Millisecond, time.Second),
		chunk.WithSessionTimeout(c.SessionTimeout),
		chunk.WithRetention(c.Retention),
		chunk.WithSpoolDir(c.SpoolDir),
		chunk.WithMaxCallbacks(c.MaxCallbacks),
		chunk.WithLogger(logger),
	}
}
