package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// DefaultEnvFiles are loaded by Load in order. Variables already present in
// the environment are never overwritten, so earlier files win.
var DefaultEnvFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads the given dotenv files, skipping missing ones.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	return nil
}

// expandEnv substitutes ${VAR:-default} and ${VAR} references.
func expandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}

		return parts[2]
	})

	return envBraced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envBraced.FindStringSubmatch(match)[1])
	})
}

// expandEnvInData walks decoded YAML and expands references in every string.
func expandEnvInData(data any) any {
	switch v := data.(type) {
	case string:
		return expandEnv(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = expandEnvInData(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = expandEnvInData(item)
		}

		return out
	default:
		return v
	}
}
