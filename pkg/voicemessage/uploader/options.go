package uploader

import (
	"net/http"
	"time"
)

type Config struct {
	Path       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func DefaultConfig() Config {
	return Config{
		Path: DefaultPath,
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

type OptionPath string

func (opt OptionPath) apply(cfg *Config) {
	cfg.Path = string(opt)
}

// OptionTimeout limits a single upload attempt. Zero means no limit.
type OptionTimeout time.Duration

func (opt OptionTimeout) apply(cfg *Config) {
	cfg.Timeout = time.Duration(opt)
}

type OptionHTTPClient struct {
	*http.Client
}

func (opt OptionHTTPClient) apply(cfg *Config) {
	cfg.HTTPClient = opt.Client
}
