package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/atriumhq/atrium/internal/logger"
)

const (
	defaultListenAddr         = "localhost:8000"
	defaultLoggingLevel       = logger.LevelInfo
	defaultEnvironment        = logger.EnvProduction
	defaultWebAppURL          = "http://localhost:3000"
	defaultJWTExpiry          = 900    // seconds
	defaultRefreshExpiry      = 604800 // seconds, 7 days
	defaultRefreshTokenLength = 64
	defaultRefreshTokenRounds = 1000
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the atrium service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Web app base URL, used to build verification and invitation links
	WebAppURL string

	// Access token lifetime in seconds
	JWTExpiry int

	// Refresh token lifetime in seconds
	RefreshTokenExpiry int

	// Refresh token plaintext length
	RefreshTokenLength int

	// pbkdf2 rounds for refresh token storage hashes
	RefreshTokenRounds int

	// bcrypt cost for password hashes, 0 means the library default
	PasswordHashCost int

	// SMTP delivery, codes are logged instead when Addr is empty
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		ListenAddr:         defaultListenAddr,
		Environment:        defaultEnvironment,
		WebAppURL:          defaultWebAppURL,
		JWTExpiry:          defaultJWTExpiry,
		RefreshTokenExpiry: defaultRefreshExpiry,
		RefreshTokenLength: defaultRefreshTokenLength,
		RefreshTokenRounds: defaultRefreshTokenRounds,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	var errs []error

	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int, key string) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			parsed, err := strconv.Atoi(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, value))
				return
			}
			*o = parsed
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"WEB_APP_URL":          setString(&c.WebAppURL),
		"JWT_EXPIRY":           setInt(&c.JWTExpiry, "JWT_EXPIRY"),
		"REFRESH_TOKEN_EXPIRY": setInt(&c.RefreshTokenExpiry, "REFRESH_TOKEN_EXPIRY"),
		"REFRESH_TOKEN_LENGTH": setInt(&c.RefreshTokenLength, "REFRESH_TOKEN_LENGTH"),
		"REFRESH_TOKEN_ROUNDS": setInt(&c.RefreshTokenRounds, "REFRESH_TOKEN_ROUNDS"),
		"PASSWORD_HASH_COST":   setInt(&c.PasswordHashCost, "PASSWORD_HASH_COST"),
		"SMTP_ADDR":            setString(&c.SMTPAddr),
		"SMTP_USERNAME":        setString(&c.SMTPUsername),
		"SMTP_PASSWORD":        setString(&c.SMTPPassword),
		"SMTP_FROM":            setString(&c.SMTPFrom),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("atrium", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.WebAppURL, "web-app-url", "w", c.WebAppURL, "Web app base URL for links in emails")

	return fs.Parse(args)
}
