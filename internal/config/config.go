package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jonocairns/tskr/internal/backup"
)

// Config is the process configuration, read from TSKR_* environment
// variables.
type Config struct {
	Port     string `env:"TSKR_PORT" envDefault:"8080"`
	DBPath   string `env:"TSKR_DB_PATH" envDefault:"tskr.db"`
	BaseURL  string `env:"TSKR_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel string `env:"TSKR_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"TSKR_LOG_FILE"`

	VAPIDPublicKey  string `env:"TSKR_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"TSKR_VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"TSKR_VAPID_SUBJECT" envDefault:"mailto:noreply@tskr.app"`

	RemindersEnabled     bool          `env:"TSKR_REMINDERS_ENABLED" envDefault:"true"`
	ReminderPollInterval time.Duration `env:"TSKR_REMINDER_POLL_INTERVAL" envDefault:"60s"`
	SendLogRetention     time.Duration `env:"TSKR_SEND_LOG_RETENTION" envDefault:"2160h"`
	CadenceTimezone      string        `env:"TSKR_CADENCE_TIMEZONE" envDefault:"UTC"`

	// Origins allowed to open websocket connections, comma separated.
	WebSocketOrigins []string `env:"TSKR_WS_ORIGINS" envSeparator:","`

	CompleteRateLimit  int           `env:"TSKR_COMPLETE_RATE_LIMIT" envDefault:"30"`
	CompleteRateWindow time.Duration `env:"TSKR_COMPLETE_RATE_WINDOW" envDefault:"1m"`

	// S3-compatible storage for encrypted database snapshots.
	BackupBucket     string        `env:"TSKR_BACKUP_BUCKET"`
	BackupEndpoint   string        `env:"TSKR_BACKUP_ENDPOINT"`
	BackupRegion     string        `env:"TSKR_BACKUP_REGION" envDefault:"us-east-1"`
	BackupAccessKey  string        `env:"TSKR_BACKUP_ACCESS_KEY"`
	BackupSecretKey  string        `env:"TSKR_BACKUP_SECRET_KEY"`
	BackupPrefix     string        `env:"TSKR_BACKUP_PREFIX" envDefault:"tskr/"`
	BackupPassphrase string        `env:"TSKR_BACKUP_PASSPHRASE"`
	BackupInterval   time.Duration `env:"TSKR_BACKUP_INTERVAL" envDefault:"24h"`
	BackupRetention  time.Duration `env:"TSKR_BACKUP_RETENTION" envDefault:"720h"`

	cadenceLocation *time.Location
}

// Load reads an optional .env file (or the files given) and parses the
// environment into a validated Config. Variables already set in the
// environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	loc, err := time.LoadLocation(c.CadenceTimezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TSKR_CADENCE_TIMEZONE: %w", err))
	}
	c.cadenceLocation = loc
	if c.ReminderPollInterval <= 0 {
		errs = append(errs, errors.New("TSKR_REMINDER_POLL_INTERVAL must be positive"))
	}
	if c.SendLogRetention <= 0 {
		errs = append(errs, errors.New("TSKR_SEND_LOG_RETENTION must be positive"))
	}
	if c.CompleteRateLimit <= 0 || c.CompleteRateWindow <= 0 {
		errs = append(errs, errors.New("TSKR_COMPLETE_RATE_LIMIT and TSKR_COMPLETE_RATE_WINDOW must be positive"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("TSKR_VAPID_PUBLIC_KEY and TSKR_VAPID_PRIVATE_KEY must be set together"))
	}
	if c.BackupBucket != "" && !c.Backup().Enabled() {
		errs = append(errs, errors.New("TSKR_BACKUP_BUCKET needs TSKR_BACKUP_ACCESS_KEY, TSKR_BACKUP_SECRET_KEY and TSKR_BACKUP_PASSPHRASE"))
	}
	if c.BackupInterval <= 0 {
		errs = append(errs, errors.New("TSKR_BACKUP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// CadenceLocation returns the zone whole-day cadences align to.
func (c *Config) CadenceLocation() *time.Location {
	if c.cadenceLocation == nil {
		return time.UTC
	}
	return c.cadenceLocation
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Backup returns the snapshot storage settings.
func (c *Config) Backup() backup.Config {
	return backup.Config{
		Endpoint:   c.BackupEndpoint,
		Bucket:     c.BackupBucket,
		Region:     c.BackupRegion,
		AccessKey:  c.BackupAccessKey,
		SecretKey:  c.BackupSecretKey,
		Prefix:     c.BackupPrefix,
		Passphrase: c.BackupPassphrase,
		Retention:  c.BackupRetention,
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}
