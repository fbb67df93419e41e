package reports

import (
	"fmt"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/ethpandaops/fpt/pkg/redis"
)

// DefaultPathTemplate lays reports out as <dataset>/schema_<stage>.json
const DefaultPathTemplate = "{{ .Dataset }}/schema_{{ .Stage }}.json"

// Config selects and configures the report sink
type Config struct {
	Sink         string        `yaml:"sink" default:"file"`
	PathTemplate string        `yaml:"pathTemplate" default:"{{ .Dataset }}/schema_{{ .Stage }}.json"`
	Redis        redis.Config  `yaml:"redis"`
	TTL          time.Duration `yaml:"ttl"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch c.Sink {
	case SinkFile:
		if _, err := parsePathTemplate(c.PathTemplate); err != nil {
			return err
		}
	case SinkRedis:
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	case SinkMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSink, c.Sink)
	}

	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidConfig)
	}

	return nil
}

func parsePathTemplate(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultPathTemplate
	}

	tmpl, err := template.New("report_path").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPathTemplate, err)
	}

	return tmpl, nil
}
