package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/scratchdesk/scratchdesk/program"
)

// Config is the full application configuration, loaded from a YAML
// file with sensible defaults for a bench setup.
type Config struct {
	// Backend selects the hardware: "sim" or "grbl".
	Backend string `mapstructure:"backend"`

	// GrblPort and BusPort are the serial devices for the motion
	// controller and the I/O board. Only used with the grbl backend.
	GrblPort string `mapstructure:"grbl_port"`
	BusPort  string `mapstructure:"bus_port"`
	BaudRate int    `mapstructure:"baud_rate"`

	// PollInterval governs sensor polling and the safety-pause
	// recheck cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MoveTimeout bounds a single axis move or homing cycle.
	MoveTimeout time.Duration `mapstructure:"move_timeout"`

	// Listen is the HTTP control API address.
	Listen string `mapstructure:"listen"`

	// ProgramsFile is the CSV program table loaded at startup.
	ProgramsFile string `mapstructure:"programs_file"`

	Limits program.Limits `mapstructure:"limits"`
}

// Load reads the configuration from path, or from ./scratchdesk.yaml
// when path is empty. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scratchdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetDefault("backend", "sim")
	v.SetDefault("grbl_port", "/dev/ttyUSB0")
	v.SetDefault("bus_port", "/dev/ttyUSB1")
	v.SetDefault("baud_rate", 115200)
	v.SetDefault("poll_interval", "100ms")
	v.SetDefault("move_timeout", "60s")
	v.SetDefault("listen", ":8080")
	v.SetDefault("programs_file", "programs.csv")
	v.SetDefault("limits.max_x_position", 120.0)
	v.SetDefault("limits.max_y_position", 80.0)
	v.SetDefault("limits.min_line_spacing", 0.5)
	v.SetDefault("limits.paper_start_x", 15.0)
	v.SetDefault("limits.paper_start_y", 15.0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Backend != "sim" && cfg.Backend != "grbl" {
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return &cfg, nil
}
