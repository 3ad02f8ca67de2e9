package commands

import (
	"fmt"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/adapters"
	"github.com/eventfold/eventfold/adapters/memory"
	"github.com/eventfold/eventfold/adapters/postgres"
	"github.com/eventfold/eventfold/bus/channel"
	"github.com/eventfold/eventfold/bus/kafka"
	"github.com/eventfold/eventfold/config"
	"github.com/eventfold/eventfold/serializer/msgpack"
)

// openStore builds the event store selected by the configuration.
func openStore(cfg *config.Config) (adapters.EventStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "postgres":
		return postgres.NewStore(cfg.Store.URL, postgres.WithSchema(cfg.Store.Schema))
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// newCodec builds the payload codec selected by the configuration.
func newCodec(cfg *config.Config) (eventfold.Codec, error) {
	switch cfg.Store.Codec {
	case "", "json":
		return eventfold.NewJSONCodec(), nil
	case "msgpack":
		return msgpack.NewCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", cfg.Store.Codec)
	}
}

// newBus builds one bus from its configuration section. The SNS driver
// needs an AWS client and is only available programmatically.
func newBus(cfg config.BusConfig) (eventfold.Bus, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "channel":
		return channel.NewBus(), nil
	case "kafka":
		return kafka.NewBus(
			kafka.WithBrokers(cfg.Brokers...),
			kafka.WithTopic(cfg.Topic),
		), nil
	case "sns":
		return nil, fmt.Errorf("the sns bus requires an AWS client; wire it programmatically")
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Driver)
	}
}

// loadConfig loads the configuration from the given path, or the working
// directory when the path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(".")
}
