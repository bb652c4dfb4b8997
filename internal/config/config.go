package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the environment-driven defaults of the command line tool.
// Flags override these.
type Config struct {
	// Connection settings
	MasterURL  string
	Token      string
	Username   string
	Password   string
	Kubeconfig string

	// Behavior settings
	IncludeKindParam bool

	// Logging settings
	Debug bool
}

// New creates a configuration from the environment
func New() *Config {
	return &Config{
		MasterURL:        getEnv("KUBE_MASTER_URL", ""),
		Token:            getEnv("KUBE_TOKEN", ""),
		Username:         getEnv("KUBE_USERNAME", ""),
		Password:         getEnv("KUBE_PASSWORD", ""),
		Kubeconfig:       getEnv("KUBECONFIG", defaultKubeconfig()),
		IncludeKindParam: getEnvBool("KUBE_LIST_KIND_PARAM", false),
		Debug:            getEnvBool("DEBUG_ENABLED", false),
	}
}

func defaultKubeconfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
