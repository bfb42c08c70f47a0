package voicemessage

import (
	"time"
)

type Config struct {
	Constraints Constraints
	Uploader    Uploader
	Clock       func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Constraints: DefaultConstraints,
		Clock:       time.Now,
	}
}

type Option interface {
	apply(*Config)
}

type Options []Option

func (s Options) config() Config {
	cfg := DefaultConfig()
	for _, opt := range s {
		opt.apply(&cfg)
	}
	return cfg
}

type OptionConstraints Constraints

func (opt OptionConstraints) apply(cfg *Config) {
	cfg.Constraints = Constraints(opt)
}

type OptionUploader struct {
	Uploader
}

func (opt OptionUploader) apply(cfg *Config) {
	cfg.Uploader = opt.Uploader
}

type OptionClock func() time.Time

func (opt OptionClock) apply(cfg *Config) {
	cfg.Clock = opt
}
