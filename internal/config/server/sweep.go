package server

import "fmt"

// SweepServerConfig controls the periodic expiration sweep run by the agent
type SweepServerConfig struct {
	Interval string `mapstructure:"interval" yaml:"interval"`
	OnStart  bool   `mapstructure:"on_start" yaml:"on_start"`
	Disabled bool   `mapstructure:"disabled" yaml:"disabled"`
}

func (cfg SweepServerConfig) Validate() error {
	if cfg.Disabled {
		return nil
	}
	d, err := parseDuration("sweep.interval", cfg.Interval)
	if err != nil {
		return err
	}
	if d == 0 {
		return fmt.Errorf("sweep.interval must be positive, set sweep.disabled to turn the sweep off")
	}
	return nil
}
