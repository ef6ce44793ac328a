package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	JWTSecret   string
	LocalUserID string
	TokenTTL    time.Duration
	RedisURL    string
	NATSURL     string
	RelayBase   string
	SeedEnabled bool
	Latency     LatencyConfig
	Lifecycle   LifecycleConfig
	Retry       RetryConfig
	Simulation  SimulationConfig
}

// LatencyConfig is the artificial delay applied by each façade operation.
type LatencyConfig struct {
	Threads  time.Duration
	History  time.Duration
	Send     time.Duration
	MarkRead time.Duration
	MarkAll  time.Duration
	Delete   time.Duration
	Unread   time.Duration
}

// LifecycleConfig controls the sent -> delivered -> read timers.
type LifecycleConfig struct {
	DeliveryDelay time.Duration
	ReadDelay     time.Duration
}

// RetryConfig controls retries after transient delivery failures.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// SimulationConfig drives the synthetic traffic generator.
type SimulationConfig struct {
	Enabled             bool
	PresenceInterval    time.Duration
	IncomingInterval    time.Duration
	IncomingProbability float64
	TypingInterval      time.Duration
	TypingProbability   float64
	TypingMinDuration   time.Duration
	TypingMaxDuration   time.Duration
	Seed                int64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// DefaultLatency mirrors the response times of the hosted chat API.
func DefaultLatency() LatencyConfig {
	return LatencyConfig{
		Threads:  800 * time.Millisecond,
		History:  time.Second,
		Send:     500 * time.Millisecond,
		MarkRead: 300 * time.Millisecond,
		MarkAll:  500 * time.Millisecond,
		Delete:   300 * time.Millisecond,
		Unread:   300 * time.Millisecond,
	}
}

// DefaultLifecycle returns the default delivery and read acknowledgement delays.
func DefaultLifecycle() LifecycleConfig {
	return LifecycleConfig{
		DeliveryDelay: time.Second,
		ReadDelay:     2 * time.Second,
	}
}

// DefaultRetry returns the default retry policy for sends.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// DefaultSimulation returns the default synthetic traffic settings.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		Enabled:             true,
		PresenceInterval:    30 * time.Second,
		IncomingInterval:    time.Minute,
		IncomingProbability: 0.3,
		TypingInterval:      15 * time.Second,
		TypingProbability:   0.3,
		TypingMinDuration:   2 * time.Second,
		TypingMaxDuration:   5 * time.Second,
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA_CHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	latency := DefaultLatency()
	lifecycle := DefaultLifecycle()
	retry := DefaultRetry()
	sim := DefaultSimulation()

	v.SetDefault("app.name", "GEMA Chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("auth.local_user_id", "me")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("relay.base", "gema")
	v.SetDefault("seed.enabled", true)

	v.SetDefault("latency.threads", latency.Threads.String())
	v.SetDefault("latency.history", latency.History.String())
	v.SetDefault("latency.send", latency.Send.String())
	v.SetDefault("latency.mark_read", latency.MarkRead.String())
	v.SetDefault("latency.mark_all", latency.MarkAll.String())
	v.SetDefault("latency.delete", latency.Delete.String())
	v.SetDefault("latency.unread", latency.Unread.String())

	v.SetDefault("lifecycle.delivery_delay", lifecycle.DeliveryDelay.String())
	v.SetDefault("lifecycle.read_delay", lifecycle.ReadDelay.String())

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", retry.InitialInterval.String())
	v.SetDefault("retry.max_interval", retry.MaxInterval.String())

	v.SetDefault("simulation.enabled", sim.Enabled)
	v.SetDefault("simulation.presence_interval", sim.PresenceInterval.String())
	v.SetDefault("simulation.incoming_interval", sim.IncomingInterval.String())
	v.SetDefault("simulation.incoming_probability", sim.IncomingProbability)
	v.SetDefault("simulation.typing_interval", sim.TypingInterval.String())
	v.SetDefault("simulation.typing_probability", sim.TypingProbability)
	v.SetDefault("simulation.typing_min", sim.TypingMinDuration.String())
	v.SetDefault("simulation.typing_max", sim.TypingMaxDuration.String())
	v.SetDefault("simulation.seed", 0)
}

func fromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		JWTSecret:   v.GetString("auth.jwt_secret"),
		LocalUserID: v.GetString("auth.local_user_id"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		RelayBase:   v.GetString("relay.base"),
		SeedEnabled: v.GetBool("seed.enabled"),
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
		},
		Simulation: SimulationConfig{
			Enabled:             v.GetBool("simulation.enabled"),
			IncomingProbability: v.GetFloat64("simulation.incoming_probability"),
			TypingProbability:   v.GetFloat64("simulation.typing_probability"),
			Seed:                v.GetInt64("simulation.seed"),
		},
	}

	durations["auth.token_ttl"] = &cfg.TokenTTL
	durations["latency.threads"] = &cfg.Latency.Threads
	durations["latency.history"] = &cfg.Latency.History
	durations["latency.send"] = &cfg.Latency.Send
	durations["latency.mark_read"] = &cfg.Latency.MarkRead
	durations["latency.mark_all"] = &cfg.Latency.MarkAll
	durations["latency.delete"] = &cfg.Latency.Delete
	durations["latency.unread"] = &cfg.Latency.Unread
	durations["lifecycle.delivery_delay"] = &cfg.Lifecycle.DeliveryDelay
	durations["lifecycle.read_delay"] = &cfg.Lifecycle.ReadDelay
	durations["retry.initial_interval"] = &cfg.Retry.InitialInterval
	durations["retry.max_interval"] = &cfg.Retry.MaxInterval
	durations["simulation.presence_interval"] = &cfg.Simulation.PresenceInterval
	durations["simulation.incoming_interval"] = &cfg.Simulation.IncomingInterval
	durations["simulation.typing_interval"] = &cfg.Simulation.TypingInterval
	durations["simulation.typing_min"] = &cfg.Simulation.TypingMinDuration
	durations["simulation.typing_max"] = &cfg.Simulation.TypingMaxDuration

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		*target = parsed
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.LocalUserID == "" {
		cfg.LocalUserID = "me"
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}

	for key, p := range map[string]float64{
		"simulation.incoming_probability": cfg.Simulation.IncomingProbability,
		"simulation.typing_probability":   cfg.Simulation.TypingProbability,
	} {
		if p < 0 || p > 1 {
			return Config{}, fmt.Errorf("invalid %s: must be within [0,1]", key)
		}
	}

	if cfg.Simulation.TypingMaxDuration < cfg.Simulation.TypingMinDuration {
		cfg.Simulation.TypingMaxDuration = cfg.Simulation.TypingMinDuration
	}

	return cfg, nil
}
