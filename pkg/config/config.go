package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Station is one upstream base station candidate for selection.
type Station struct {
	MountPoint string `json:"mountPoint" validate:"required"`
	Host       string `json:"host" validate:"required"`
	Port       int    `json:"port" validate:"required,min=1,max=65535"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Latitude   float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64 `json:"longitude" validate:"min=-180,max=180"`

	// Active is a *bool so the zero value (absent from JSON) can default to
	// true, per spec: "active flag (default true)".
	Active *bool `json:"active"`
}

// IsActive resolves the default-true convention for the Active flag.
func (s Station) IsActive() bool {
	return s.Active == nil || *s.Active
}

// ServerConfig is the immutable snapshot published by Store.
type ServerConfig struct {
	Interface  string `json:"interface" validate:"required"`
	Port       int    `json:"port" validate:"required,min=1,max=65535"`
	MountPoint string `json:"mountPoint" validate:"required"`
	UserAgent  string `json:"userAgent"`

	Stations []Station `json:"stations" validate:"dive"`

	AdminPort     int    `json:"adminPort"`
	AdminUsername string `json:"adminUsername"`
	AdminPassword string `json:"adminPassword"`
}

// Default returns the snapshot written to disk when the config file is
// absent at first load.
func Default() ServerConfig {
	return ServerConfig{
		Interface:  "0.0.0.0",
		Port:       2101,
		MountPoint: "PROXY",
		UserAgent:  "NTRIP Client/1.0",
		Stations:   []Station{},
	}
}

// Validate enforces spec §4.2's load/replace rules: required fields present
// and typed, mount-point uniqueness, lat/lon range, admin port distinct from
// the downstream port.
func Validate(cfg ServerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]struct{}, len(cfg.Stations))
	for _, st := range cfg.Stations {
		if _, dup := seen[st.MountPoint]; dup {
			return fmt.Errorf("config: duplicate mount point %q", st.MountPoint)
		}
		seen[st.MountPoint] = struct{}{}
	}

	if cfg.AdminPort != 0 && cfg.AdminPort == cfg.Port {
		return fmt.Errorf("config: adminPort must differ from port")
	}

	return nil
}
