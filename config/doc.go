// Package config loads service configuration from environment variables and
// optional .env files into tagged structs.
//
// Every package in this module that needs settings declares a Config struct
// with `env` tags and calls Load on it:
//
//	type Config struct {
//	    ClientID string        `env:"CLIENT_ID,required"`
//	    Timeout  time.Duration `env:"HTTP_TIMEOUT,default:30s"`
//	    Scopes   []string      `env:"SCOPES,default:offline_access,openid"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Variable names are prefixed with DefaultPrefix ("XERO_") unless LoadOptions
// says otherwise, so the struct above reads XERO_CLIENT_ID, XERO_HTTP_TIMEOUT
// and XERO_SCOPES.
//
// # Tags
//
// A tag is the variable name followed by options:
//
//	env:"NAME"                   plain mapping
//	env:"NAME,default:value"     value used when NAME is unset or empty
//	env:"NAME,required"          Load fails with ErrMissingRequired
//
// Supported field types are string, int, int64, bool, time.Duration and
// []string (comma separated). Fields of other types are left untouched.
//
// # .env files
//
// Load reads ".env" from the working directory (or the files listed in
// LoadOptions.EnvFile) before consulting the environment. Missing files are
// not an error. Values already present in the process environment win.
//
// Set XERO_CONFIG_DEBUG=true to print resolved values; names containing
// SECRET, PASSWORD, KEY or TOKEN are masked.
package config
