package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPrefix is prepended to every environment variable name unless
// LoadOptions overrides it.
const DefaultPrefix = "XERO_"

// ErrMissingRequired is returned when a field tagged `required` has neither an
// environment value nor a default.
var ErrMissingRequired = errors.New("missing required configuration")

// LoadOptions defines options for loading configuration from environment variables.
type LoadOptions struct {
	Prefix  string   // Prefix to prepend to environment variable names (default: "XERO_")
	Debug   bool     // Print every resolved variable (secrets are masked)
	EnvFile []string // .env files to load before reading the environment (default: ".env")
}

// Load populates a struct from .env file and environment variables using reflection.
// This function loads .env files (missing files are ignored) and then reads
// environment variables to populate the provided struct.
//
// The function uses struct field tags to determine environment variable names:
//   - `env:"VAR_NAME"`: Maps the field to the specified environment variable
//   - `env:"VAR_NAME,default:value"`: Provides a default value if env var is not set
//   - `env:"VAR_NAME,required"`: Fails with ErrMissingRequired when unset and no default exists
//
// Variables already present in the process environment win over .env values.
//
// Example:
//
//	type Config struct {
//	    DatabaseURL string `env:"DATABASE_URL,required"`
//	    Port        int    `env:"PORT,default:8080"`
//	    Debug       bool   `env:"DEBUG,default:false"`
//	}
//
//	var cfg Config
//	err := config.Load(&cfg, config.LoadOptions{Prefix: "MYAPP_"})
//	// Will look for MYAPP_DATABASE_URL, MYAPP_PORT, MYAPP_DEBUG
func Load(cfg interface{}, opts ...LoadOptions) error {
	options := LoadOptions{Prefix: DefaultPrefix}
	if len(opts) > 0 {
		options = opts[0]
	}

	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", cfg)
	}

	// Silently try to load .env files, ignore if not found
	_ = godotenv.Load(options.EnvFile...)

	v := rv.Elem()
	t := v.Type()
	printDebug := options.Debug || os.Getenv(DefaultPrefix+"CONFIG_DEBUG") == "true"

	var missing []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" || !field.IsExported() {
			continue
		}

		envName, defaultValue, required := parseTag(envTag)

		// Apply prefix to environment variable name
		fullEnvName := options.Prefix + envName
		value := os.Getenv(fullEnvName)
		if value == "" {
			value = defaultValue
		}
		if printDebug {
			fmt.Printf("[CONFIG] %s=%s\n", fullEnvName, mask(envName, value))
		}

		if value == "" {
			if required {
				missing = append(missing, fullEnvName)
			}
			continue
		}
		if err := setFieldValue(v.Field(i), value); err != nil {
			return fmt.Errorf("config: %s: %w", fullEnvName, err)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

// parseTag splits `NAME,default:x,required` into its parts. Everything after
// "default:" up to the next option belongs to the default, so list defaults
// like `default:a,b` keep their commas.
func parseTag(tag string) (name, defaultValue string, required bool) {
	parts := strings.Split(tag, ",")
	name = parts[0]

	var def []string
	inDefault := false
	for _, part := range parts[1:] {
		switch {
		case part == "required":
			required = true
			inDefault = false
		case strings.HasPrefix(part, "default:"):
			inDefault = true
			def = []string{strings.TrimPrefix(part, "default:")}
		case strings.Contains(part, ":"):
			// Unknown option
			inDefault = false
		case inDefault:
			def = append(def, part)
		}
	}
	return name, strings.Join(def, ","), required
}

// mask hides values of variables that look like secrets in debug output.
func mask(name, value string) string {
	upper := strings.ToUpper(name)
	for _, marker := range []string{"SECRET", "PASSWORD", "KEY", "TOKEN"} {
		if strings.Contains(upper, marker) && value != "" {
			return "****"
		}
	}
	return value
}

// setFieldValue sets the value of a struct field using reflection and type conversion.
//
// Supported types:
//   - string: Direct assignment
//   - int, int64: Parsed using strconv.ParseInt with base 10
//   - bool: Parsed using strconv.ParseBool (supports "true", "false", "1", "0", etc.)
//   - time.Duration: Parsed using time.ParseDuration
//   - []string: Comma-separated, whitespace trimmed, empty items dropped
//
// Unsupported types are skipped silently.
func setFieldValue(field reflect.Value, value string) error {
	// Check for time.Duration first
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		// Skip unsupported field types silently
		return nil
	}
	return nil
}
