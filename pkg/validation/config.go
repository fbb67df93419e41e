package validation

import (
	"errors"
)

// DefaultKeySampleLimit bounds how many event records contribute keys to the present column set
const DefaultKeySampleLimit = 20000

// ErrInvalidKeySampleLimit is returned when the key sample limit is not positive
var ErrInvalidKeySampleLimit = errors.New("keySampleLimit must be positive")

// Config holds validation settings
type Config struct {
	// Strict makes a failing report fail the run. Otherwise drift is logged and recorded only.
	Strict         bool `yaml:"strict" default:"true"`
	KeySampleLimit int  `yaml:"keySampleLimit" default:"20000"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.KeySampleLimit <= 0 {
		return ErrInvalidKeySampleLimit
	}

	return nil
}
