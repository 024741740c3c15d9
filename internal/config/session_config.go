package config

import "time"

type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetExpiryMargin() time.Duration
	GetDefaultTokenLifetime() time.Duration
	GetDirectLoginLifetime() time.Duration
	GetRequiredRoles() []string
}

type Session struct {
	RefreshInterval      time.Duration `yaml:"refresh_interval" env:"UGATE_REFRESH_INTERVAL" env-default:"10m"`
	ExpiryMargin         time.Duration `yaml:"expiry_margin" env:"UGATE_EXPIRY_MARGIN" env-default:"60s"`
	DefaultTokenLifetime time.Duration `yaml:"default_token_lifetime" env:"UGATE_DEFAULT_TOKEN_LIFETIME" env-default:"3600s"`
	DirectLoginLifetime  time.Duration `yaml:"direct_login_lifetime" env:"UGATE_DIRECT_LOGIN_LIFETIME" env-default:"15m"`
	RequiredRoles        []string      `yaml:"required_roles" env:"UGATE_REQUIRED_ROLES" env-separator:","`
}

var _ SessionConfig = Session{}

func (s Session) GetRefreshInterval() time.Duration {
	if s.RefreshInterval <= 0 {
		return 10 * time.Minute
	}
	return s.RefreshInterval
}

func (s Session) GetExpiryMargin() time.Duration {
	if s.ExpiryMargin < 0 {
		return 0
	}
	if s.ExpiryMargin == 0 {
		return time.Minute
	}
	return s.ExpiryMargin
}

func (s Session) GetDefaultTokenLifetime() time.Duration {
	if s.DefaultTokenLifetime <= 0 {
		return time.Hour
	}
	return s.DefaultTokenLifetime
}

func (s Session) GetDirectLoginLifetime() time.Duration {
	if s.DirectLoginLifetime <= 0 {
		return 15 * time.Minute
	}
	return s.DirectLoginLifetime
}

// GetRequiredRoles returns the role set the gate accepts (any one of them)
func (s Session) GetRequiredRoles() []string {
	if len(s.RequiredRoles) == 0 {
		return []string{"SUPER_ADMIN", "ADMIN"}
	}
	return s.RequiredRoles
}
