package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetInt returns the integer value of key, or def when unset or unparsable.
func GetInt(key string, def int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// GetBool reports whether key is set to a truthy value.
func GetBool(key string, def bool) bool {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// GetDuration reads key as a count of unit (e.g. seconds).
func GetDuration(key string, def int, unit time.Duration) time.Duration {
	return time.Duration(GetInt(key, def)) * unit
}

// Require returns a ConfigurationError listing every key that has no value.
func Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(GetEnv(k, "")) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &apperr.ConfigurationError{Keys: missing}
	}
	return nil
}

// SetupEnvFile loads the first .env file found. Unlike a dev box, containers
// usually inject plain environment variables, so a missing file is not fatal.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/cleanconnect to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}
	Env = map[string]string{}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

// Location returns the configured business time zone used for date arithmetic.
func Location() *time.Location {
	name := GetEnv("APP_TIMEZONE", "Europe/Amsterdam")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
