package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config keys
const (
	KeyDB      = "db"
	KeyBackend = "backend"

	KeyDoltHost       = "dolt.host"
	KeyDoltPort       = "dolt.port"
	KeyDoltUser       = "dolt.user"
	KeyDoltPassword   = "dolt.password"
	KeyDoltDatabase   = "dolt.database"
	KeyDoltAutoCommit = "dolt.auto-commit"

	KeyOrg   = "org"
	KeyActor = "actor"
	KeyLead  = "lead"

	KeyConflictThreshold     = "conflict.threshold"
	KeyConflictDetectOnWrite = "conflict.detect-on-write"

	KeyClassifierProvider  = "classifier.provider"
	KeyClassifierRulesFile = "classifier.rules-file"
	KeyClassifierModel     = "classifier.model"
	KeyClassifierAPIKey    = "classifier.api-key"

	KeyConstraintRulesFile = "constraint.rules-file"

	KeySweepHealthInterval   = "sweep.health-interval"
	KeySweepConflictInterval = "sweep.conflict-interval"
	KeySweepStaleAfter       = "sweep.stale-after"
	KeySweepConcurrency      = "sweep.concurrency"

	KeyNotifyWebhooks    = "notify.webhooks"
	KeyNotifyNATSURL     = "notify.nats-url"
	KeyNotifyNATSSubject = "notify.nats-subject"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
)

// Backends
const (
	BackendSQLite = "sqlite"
	BackendDolt   = "dolt"
)

// Classifier providers
const (
	ProviderRules     = "rules"
	ProviderAnthropic = "anthropic"
)

// DefaultAIModel is the model used by the anthropic classifier when
// classifier.model is unset.
const DefaultAIModel = "claude-haiku-4-5"

// RegisterDefaults registers default values for every key.
// Called from Initialize().
func RegisterDefaults() {
	if v == nil {
		return
	}

	v.SetDefault(KeyDB, filepath.Join(DirName, "tenet.db"))
	v.SetDefault(KeyBackend, BackendSQLite)

	v.SetDefault(KeyDoltHost, "127.0.0.1")
	v.SetDefault(KeyDoltPort, 3307)
	v.SetDefault(KeyDoltUser, "root")
	v.SetDefault(KeyDoltPassword, "")
	v.SetDefault(KeyDoltDatabase, "tenet")
	v.SetDefault(KeyDoltAutoCommit, false)

	v.SetDefault(KeyOrg, "default")
	v.SetDefault(KeyActor, os.Getenv("USER"))
	v.SetDefault(KeyLead, false)

	v.SetDefault(KeyConflictThreshold, 0.5)
	v.SetDefault(KeyConflictDetectOnWrite, true)

	v.SetDefault(KeyClassifierProvider, ProviderRules)
	v.SetDefault(KeyClassifierRulesFile, "")
	v.SetDefault(KeyClassifierModel, DefaultAIModel)
	v.SetDefault(KeyClassifierAPIKey, "")

	v.SetDefault(KeyConstraintRulesFile, "")

	v.SetDefault(KeySweepHealthInterval, "1h")
	v.SetDefault(KeySweepConflictInterval, "6h")
	v.SetDefault(KeySweepStaleAfter, "720h")
	v.SetDefault(KeySweepConcurrency, 4)

	v.SetDefault(KeyNotifyWebhooks, []string{})
	v.SetDefault(KeyNotifyNATSURL, "")
	v.SetDefault(KeyNotifyNATSSubject, "tenet.notifications")

	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")
}

// Settings is a typed snapshot of the configuration.
type Settings struct {
	DB      string `yaml:"db"`
	Backend string `yaml:"backend"`

	Dolt DoltSettings `yaml:"dolt"`

	Org   string `yaml:"org"`
	Actor string `yaml:"actor"`
	Lead  bool   `yaml:"lead"`

	Conflict   ConflictSettings   `yaml:"conflict"`
	Classifier ClassifierSettings `yaml:"classifier"`
	Constraint ConstraintSettings `yaml:"constraint"`
	Sweep      SweepSettings      `yaml:"sweep"`
	Notify     NotifySettings     `yaml:"notify"`
	Log        LogSettings        `yaml:"log"`
}

// DoltSettings locates a Dolt sql-server.
type DoltSettings struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password,omitempty"`
	Database   string `yaml:"database"`
	AutoCommit bool   `yaml:"auto-commit"`
}

type ConflictSettings struct {
	Threshold     float64 `yaml:"threshold"`
	DetectOnWrite bool    `yaml:"detect-on-write"`
}

type ClassifierSettings struct {
	Provider  string `yaml:"provider"`
	RulesFile string `yaml:"rules-file,omitempty"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api-key,omitempty"`
}

type ConstraintSettings struct {
	RulesFile string `yaml:"rules-file,omitempty"`
}

// SweepSettings drives the periodic work of `tn serve`.
type SweepSettings struct {
	HealthInterval   time.Duration `yaml:"health-interval"`
	ConflictInterval time.Duration `yaml:"conflict-interval"`
	StaleAfter       time.Duration `yaml:"stale-after"`
	Concurrency      int           `yaml:"concurrency"`
}

type NotifySettings struct {
	Webhooks    []string `yaml:"webhooks,omitempty"`
	NATSURL     string   `yaml:"nats-url,omitempty"`
	NATSSubject string   `yaml:"nats-subject"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load returns the current configuration as a Settings value.
func Load() Settings {
	return Settings{
		DB:      GetString(KeyDB),
		Backend: GetString(KeyBackend),
		Dolt: DoltSettings{
			Host:       GetString(KeyDoltHost),
			Port:       GetInt(KeyDoltPort),
			User:       GetString(KeyDoltUser),
			Password:   GetString(KeyDoltPassword),
			Database:   GetString(KeyDoltDatabase),
			AutoCommit: GetBool(KeyDoltAutoCommit),
		},
		Org:   GetString(KeyOrg),
		Actor: GetString(KeyActor),
		Lead:  GetBool(KeyLead),
		Conflict: ConflictSettings{
			Threshold:     GetFloat64(KeyConflictThreshold),
			DetectOnWrite: GetBool(KeyConflictDetectOnWrite),
		},
		Classifier: ClassifierSettings{
			Provider:  GetString(KeyClassifierProvider),
			RulesFile: GetString(KeyClassifierRulesFile),
			Model:     GetString(KeyClassifierModel),
			APIKey:    GetString(KeyClassifierAPIKey),
		},
		Constraint: ConstraintSettings{
			RulesFile: GetString(KeyConstraintRulesFile),
		},
		Sweep: SweepSettings{
			HealthInterval:   GetDuration(KeySweepHealthInterval),
			ConflictInterval: GetDuration(KeySweepConflictInterval),
			StaleAfter:       GetDuration(KeySweepStaleAfter),
			Concurrency:      GetInt(KeySweepConcurrency),
		},
		Notify: NotifySettings{
			Webhooks:    GetStringSlice(KeyNotifyWebhooks),
			NATSURL:     GetString(KeyNotifyNATSURL),
			NATSSubject: GetString(KeyNotifyNATSSubject),
		},
		Log: LogSettings{
			Level:  GetString(KeyLogLevel),
			Format: GetString(KeyLogFormat),
		},
	}
}

// Redacted returns a copy with secrets blanked, for display.
func (s Settings) Redacted() Settings {
	if s.Dolt.Password != "" {
		s.Dolt.Password = "***"
	}
	if s.Classifier.APIKey != "" {
		s.Classifier.APIKey = "***"
	}
	return s
}
