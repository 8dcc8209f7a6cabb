package logger

import (
	"io"
	"os"
	"strconv"
)

// Options configures a Logger.
type Options struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // overrides File when set
	ServiceName string

	// Rotating file output. Empty File logs to stdout only.
	File       string
	FileOnly   bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultOptions logs JSON at info level to stdout.
func DefaultOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "json",
		ServiceName: "geoimport",
		MaxSizeMB:   100,
		MaxBackups:  7,
		MaxAgeDays:  30,
		Compress:    true,
	}
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_FILE, LOG_FILE_ONLY,
// LOG_MAX_SIZE, LOG_MAX_BACKUPS, LOG_MAX_AGE, LOG_COMPRESS and SERVICE_NAME
// on top of DefaultOptions.
func OptionsFromEnv() *Options {
	opts := DefaultOptions()
	opts.Level = getEnv("LOG_LEVEL", opts.Level)
	opts.Format = getEnv("LOG_FORMAT", opts.Format)
	opts.ServiceName = getEnv("SERVICE_NAME", opts.ServiceName)
	opts.File = getEnv("LOG_FILE", "")
	opts.FileOnly = getEnvBool("LOG_FILE_ONLY", false)
	opts.MaxSizeMB = getEnvInt("LOG_MAX_SIZE", opts.MaxSizeMB)
	opts.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", opts.MaxBackups)
	opts.MaxAgeDays = getEnvInt("LOG_MAX_AGE", opts.MaxAgeDays)
	opts.Compress = getEnvBool("LOG_COMPRESS", opts.Compress)
	return opts
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return i
}
