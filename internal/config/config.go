package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		// TTL bounds how long the question list is cached.
		TTL              string `yaml:"ttl"`
		QuestionWindow   string `yaml:"questionWindow"`
		Grace            string `yaml:"grace"`
		EnforceDeadlines *bool  `yaml:"enforceDeadlines"`
		SeedFile         string `yaml:"seedFile"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret  string `yaml:"jwtSecret"`
		Issuer     string `yaml:"issuer"`
		TokenTTL   string `yaml:"tokenTTL"`
		BcryptCost int    `yaml:"bcryptCost"`
	} `yaml:"auth"`
	Bootstrap struct {
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DisplayName string `yaml:"displayName"`
	} `yaml:"bootstrap"`
	Realtime struct {
		Enabled      *bool  `yaml:"enabled"`
		PingInterval string `yaml:"pingInterval"`
		PongTimeout  string `yaml:"pongTimeout"`
		IdleTimeout  string `yaml:"idleTimeout"`
		SendBuffer   int    `yaml:"sendBuffer"`
		RelayChannel string `yaml:"relayChannel"`
	} `yaml:"realtime"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
	RateLimit struct {
		AnswersPerMinute int `yaml:"answersPerMinute"`
	} `yaml:"rateLimit"`
}

// Default is the configuration used when no file exists: in-memory stores,
// push enabled, no automatic completion.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = "10s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Redis.Prefix = "quiz"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.Grace = "2s"
	cfg.Auth.Issuer = "live-quiz-service"
	cfg.Auth.TokenTTL = "12h"
	cfg.Auth.BcryptCost = 10
	cfg.Realtime.PingInterval = "25s"
	cfg.Realtime.PongTimeout = "10s"
	cfg.Realtime.IdleTimeout = "60s"
	cfg.Realtime.SendBuffer = 16
	cfg.Realtime.RelayChannel = "quiz:snapshots"
	cfg.AMQP.Exchange = "quiz.events"
	cfg.RateLimit.AnswersPerMinute = 120
	return cfg
}

// Load reads YAML config from path on top of Default. ${VAR} references are expanded
// from the environment. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RealtimeEnabled reports whether websocket push is on. It defaults to true.
func (c Config) RealtimeEnabled() bool {
	return c.Realtime.Enabled == nil || *c.Realtime.Enabled
}

// DeadlinesEnforced reports whether late answers are rejected. It defaults to true.
func (c Config) DeadlinesEnforced() bool {
	return c.Quiz.EnforceDeadlines == nil || *c.Quiz.EnforceDeadlines
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
