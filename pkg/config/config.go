// Package config loads server settings from flags, falling back to environment variables and an
// optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/astromechza/memoboard/pkg/store"
)

type Config struct {
	Addr             string
	DBDriver         string
	DBDSN            string
	MaxBodyBytes     int64
	SubscriberBuffer int
	ShutdownTimeout  time.Duration
}

func defaults() Config {
	return Config{
		Addr:             "localhost:8080",
		DBDriver:         "sqlite3",
		DBDSN:            "memoboard.sqlite3",
		MaxBodyBytes:     1 << 20,
		SubscriberBuffer: 64,
		ShutdownTimeout:  time.Second * 10,
	}
}

// Load reads envFile (ignored when missing) into the environment, then parses args. Flags win
// over environment variables, which win over the defaults.
func Load(envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg, err := fromEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}

	fset := flag.NewFlagSet("memoboard", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "the address to listen on (env PORT or ADDR)")
	fset.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "the database driver, sqlite3 or postgres (env DB_DRIVER)")
	fset.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "the database connection string (env DB_DSN or DB_URL)")
	fset.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "the largest accepted request body (env MAX_BODY_BYTES)")
	fset.IntVar(&cfg.SubscriberBuffer, "subscriber-buffer", cfg.SubscriberBuffer, "frames buffered per push connection before dropping (env SUBSCRIBER_BUFFER)")
	fset.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long to wait for requests on shutdown (env SHUTDOWN_TIMEOUT)")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func fromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()
	if v, ok := lookup("ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		cfg.Addr = ":" + v
	}
	if v, ok := lookup("DB_DRIVER"); ok && v != "" {
		cfg.DBDriver = v
	}
	if v, ok := lookup("DB_URL"); ok && v != "" {
		cfg.DBDSN = v
	}
	if v, ok := lookup("DB_DSN"); ok && v != "" {
		cfg.DBDSN = v
	}
	if v, ok := lookup("MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		cfg.MaxBodyBytes = n
	}
	if v, ok := lookup("SUBSCRIBER_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("SUBSCRIBER_BUFFER: %w", err)
		}
		cfg.SubscriberBuffer = n
	}
	if v, ok := lookup("SHUTDOWN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if _, err := store.DialectFor(c.DBDriver); err != nil {
		errs = append(errs, err)
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("db dsn must not be empty"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max body bytes must be positive"))
	}
	if c.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("subscriber buffer must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	return errors.Join(errs...)
}
