package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"
)

const envPrefix = "AVATARGATE"

type Config struct {
	ListenAddr       string        `envconfig:"LISTEN_ADDR" default:":8080"`
	DBPath           string        `envconfig:"DB_PATH" default:"avatargate.db"`
	UploadDir        string        `envconfig:"UPLOAD_DIR" default:"uploads"`
	SynthesisPath    string        `envconfig:"SYNTHESIS_PATH"`
	SynthesisProfile string        `envconfig:"SYNTHESIS_PROFILE"`
	Concurrency      int           `envconfig:"CONCURRENCY" default:"1"`
	QueueSize        int           `envconfig:"QUEUE_SIZE" default:"100"`
	JobTimeout       time.Duration `envconfig:"JOB_TIMEOUT" default:"30m"`
	MaxUploadMB      int64         `envconfig:"MAX_UPLOAD_MB" default:"64"`
	SourceLang       string        `envconfig:"SOURCE_LANG" default:"en"`
	TargetLang       string        `envconfig:"TARGET_LANG" default:"en"`
	Languages        []string      `envconfig:"LANGUAGES" default:"en,es,fr,de,it,pt,pl,zh,ar,tr,ru,ko,hi"`
	Enhancers        []string      `envconfig:"ENHANCERS" default:"gfpgan,RestoreFormer"`
	CORSOrigins      []string      `envconfig:"CORS_ORIGINS"`
	RateLimitRPS     int           `envconfig:"RATE_LIMIT_RPS" default:"2"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	CookieSecure     bool          `envconfig:"COOKIE_SECURE" default:"false"`
	PruneInputs      bool          `envconfig:"PRUNE_INPUTS" default:"true"`
	KeepFailed       bool          `envconfig:"KEEP_FAILED" default:"false"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat        string        `envconfig:"LOG_FORMAT" default:"auto"`

	// Synthesis is loaded from SynthesisProfile, or the defaults when unset.
	Synthesis *Synthesis `ignored:"true"`
}

// Load reads AVATARGATE_* environment variables, validates them and loads the
// synthesis profile.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	syn := DefaultSynthesis()
	if cfg.SynthesisProfile != "" {
		var err error
		syn, err = LoadSynthesis(cfg.SynthesisProfile)
		if err != nil {
			return nil, fmt.Errorf("AVATARGATE_SYNTHESIS_PROFILE: %w", err)
		}
	}
	if cfg.SynthesisPath != "" {
		syn.Executable = cfg.SynthesisPath
	}
	if err := syn.Validate(); err != nil {
		return nil, fmt.Errorf("synthesis profile: %w", err)
	}
	cfg.Synthesis = syn
	return cfg, nil
}

// MaxUploadBytes is the multipart request size limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func (c *Config) normalize() error {
	c.Languages = trimAll(c.Languages)
	c.Enhancers = trimAll(c.Enhancers)
	c.CORSOrigins = trimAll(c.CORSOrigins)

	for i, code := range c.Languages {
		canon, err := canonicalLang(code)
		if err != nil {
			return fmt.Errorf("AVATARGATE_LANGUAGES: %w", err)
		}
		c.Languages[i] = canon
	}
	var err error
	if c.SourceLang, err = canonicalLang(c.SourceLang); err != nil {
		return fmt.Errorf("AVATARGATE_SOURCE_LANG: %w", err)
	}
	if c.TargetLang, err = canonicalLang(c.TargetLang); err != nil {
		return fmt.Errorf("AVATARGATE_TARGET_LANG: %w", err)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	return nil
}

func (c *Config) validate() error {
	if c.Concurrency < 1 {
		return errors.New("AVATARGATE_CONCURRENCY must be > 0")
	}
	if c.QueueSize < 1 {
		return errors.New("AVATARGATE_QUEUE_SIZE must be > 0")
	}
	if c.JobTimeout < 0 {
		return errors.New("AVATARGATE_JOB_TIMEOUT must not be negative")
	}
	if c.MaxUploadMB < 1 {
		return errors.New("AVATARGATE_MAX_UPLOAD_MB must be > 0")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("AVATARGATE_RATE_LIMIT_RPS must not be negative")
	}
	if c.SessionTTL <= 0 {
		return errors.New("AVATARGATE_SESSION_TTL must be > 0")
	}
	if c.UploadDir == "" {
		return errors.New("AVATARGATE_UPLOAD_DIR must not be empty")
	}
	if len(c.Languages) == 0 {
		return errors.New("AVATARGATE_LANGUAGES contains no languages")
	}
	for _, l := range []string{c.SourceLang, c.TargetLang} {
		if !contains(c.Languages, l) {
			return fmt.Errorf("default language %q is not in AVATARGATE_LANGUAGES", l)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("AVATARGATE_LOG_LEVEL %q must be one of: debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("AVATARGATE_LOG_FORMAT %q must be one of: auto, json, text", c.LogFormat)
	}
	return nil
}

// CanonicalLang validates a BCP 47 code and returns its canonical base form
// (e.g. "EN" -> "en", "zh-Hans" -> "zh").
func CanonicalLang(code string) (string, error) {
	return canonicalLang(code)
}

func canonicalLang(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("empty language code")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
