package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	SSH     SSHConfig
	Logging LoggingConfig
	Project ProjectConfig
}

type ServerConfig struct {
	Port         int
	AllowOrigins []string
}

type SSHConfig struct {
	ConnectTimeout int
	AuthTimeout    int
	StepTimeout    int
	KnownHostsFile string
}

func (c SSHConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (c SSHConfig) AuthTimeoutDuration() time.Duration {
	return time.Duration(c.AuthTimeout) * time.Second
}

// StepTimeoutDuration is zero when steps may run for as long as they need.
func (c SSHConfig) StepTimeoutDuration() time.Duration {
	return time.Duration(c.StepTimeout) * time.Second
}

type LoggingConfig struct {
	Level     string
	Format    string
	File      string
	MaxSizeMB int
	MaxFiles  int
}

type ProjectConfig struct {
	Path       string
	ConfigFile string
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			AllowOrigins: getEnvAsList("SERVER_ALLOW_ORIGINS", []string{"http://localhost:3000"}),
		},
		SSH: SSHConfig{
			ConnectTimeout: getEnvAsInt("SSH_CONNECT_TIMEOUT", 30),
			AuthTimeout:    getEnvAsInt("SSH_AUTH_TIMEOUT", 20),
			StepTimeout:    getEnvAsInt("SSH_STEP_TIMEOUT", 0),
			KnownHostsFile: getEnvAsString("SSH_KNOWN_HOSTS", "~/.ssh/known_hosts"),
		},
		Logging: LoggingConfig{
			Level:     getEnvAsString("LOG_LEVEL", "info"),
			Format:    getEnvAsString("LOG_FORMAT", "console"),
			File:      getEnvAsString("LOG_FILE", ""),
			MaxSizeMB: getEnvAsInt("LOG_MAX_SIZE_MB", 10),
			MaxFiles:  getEnvAsInt("LOG_MAX_FILES", 5),
		},
		Project: ProjectConfig{
			Path:       getEnvAsString("MDM_PROJECT_PATH", ""),
			ConfigFile: getEnvAsString("MDM_CONFIG_FILE", "deploy.json"),
		},
	}
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
