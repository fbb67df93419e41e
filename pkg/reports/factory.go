package reports

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/storage"
)

// New builds the configured sink. File reports are written under root through store.
func New(log logrus.FieldLogger, cfg *Config, store storage.Store, root string) (Sink, error) {
	switch cfg.Sink {
	case SinkFile, "":
		return NewFileSink(log, store, root, cfg.PathTemplate)
	case SinkRedis:
		return NewRedisSink(log, cfg.Redis.NewClient(), &cfg.Redis, cfg.TTL), nil
	case SinkMemory:
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Sink)
	}
}
