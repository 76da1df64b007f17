package sysacq

import "github.com/Shilirayen01/sys-acquisition/internal/app/config"

// Config is the runtime configuration; see the yaml keys on the section
// structs.
type Config = config.Config

// LoadConfig reads, defaults and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
