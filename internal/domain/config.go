package domain

import (
	"path/filepath"
	"runtime"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Download     TransferConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// CatalogConfig configures the remote course catalog client
type CatalogConfig struct {
	BaseURL     string        `mapstructure:"base_url"` // overrides subdomain when set (tests, proxies)
	Subdomain   string        `mapstructure:"subdomain"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PageSize    int           `mapstructure:"page_size"`
}

// TransferConfig configures the byte-transfer engine and the task
// execution loop
type TransferConfig struct {
	RootDir       string        `mapstructure:"root_dir"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ThreadsCount  int           `mapstructure:"threads_count"`
	HLSWorkers    int           `mapstructure:"hls_workers"`
}

// StateDir returns the directory for app-private state under the
// download root
func (c TransferConfig) StateDir() string {
	return filepath.Join(c.RootDir, ".coursedl")
}

// LogsDir returns the directory for categorized log files
func (c TransferConfig) LogsDir() string {
	return filepath.Join(c.StateDir(), "logs")
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	ConcurrentTasks int           `mapstructure:"concurrent_tasks"`
	TaskMaxRetries  int           `mapstructure:"task_max_retries"`
}

// NotificationConfig contains desktop notification configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Catalog: CatalogConfig{
			Subdomain: "www",
			Timeout:   40 * time.Second,
			PageSize:  200,
		},
		Download: TransferConfig{
			RootDir:       "$HOME/Downloads/courses",
			MaxRetries:    3,
			RetryInterval: 3 * time.Second,
			ChunkSize:     8192,
			Timeout:       30 * time.Second,
			ThreadsCount:  5,
			HLSWorkers:    8,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/Downloads/courses/.coursedl/queue.db",
			CheckInterval:   10 * time.Second,
			ConcurrentTasks: 1,
			TaskMaxRetries:  3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  defaultNotifyMethod(),
		},
	}
}

func defaultNotifyMethod() string {
	if runtime.GOOS == "darwin" {
		return "osascript"
	}
	return "notify-send"
}
