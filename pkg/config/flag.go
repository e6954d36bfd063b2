package config

import (
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/types"
)

// Loaded carries the fully resolved configuration after lflag.Configure runs.
type Loaded struct {
	Settings types.Settings
	Secrets  Secrets
}

// Configured sets up the config flags and loads the control document and
// secrets when flags are parsed. Any failure panics since the process cannot
// run without valid configuration.
func Configured() *Loaded {
	path := lflag.String("config", "peakshed.yaml", "Path to the YAML control document")

	l := &Loaded{}

	lflag.Do(func() {
		s, err := Load(*path)
		if err != nil {
			panic(fmt.Sprintf("config load failed: %v", err))
		}
		sec, err := LoadSecrets()
		if err != nil {
			panic(fmt.Sprintf("secrets load failed: %v", err))
		}
		l.Settings = s
		l.Secrets = sec
	})

	return l
}
