package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Collab    CollabConfig
}

type ServerConfig struct {
	Address        string
	Auth           AuthConfig
	RateLimit      RateLimitConfig `mapstructure:"rateLimit"`
	AllowedOrigins []string        `mapstructure:"allowedOrigins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type RateLimitConfig struct {
	// Window is the fixed counting window per source address.
	Window time.Duration `mapstructure:"window"`
	// MaxPerWindow is the number of connection attempts admitted per window.
	MaxPerWindow int `mapstructure:"maxPerWindow"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// CollabConfig locates the scheduling application's internal API, which
// backs the access and schedule collaborators.
type CollabConfig struct {
	BaseURL      string        `mapstructure:"baseUrl"`
	ServiceToken string        `mapstructure:"serviceToken"`
	Timeout      time.Duration `mapstructure:"timeout"`
}
