package kafka

import (
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"github.com/twmb/franz-go/plugin/kslog"

	"github.com/getlago/lago/billing-processor/config/tracing"
)

const (
	Scram256 string = "SCRAM-SHA-256"
	Scram512 string = "SCRAM-SHA-512"

	DefaultClientID = "lago-billing-processor"
)

// ServerConfig is shared by every client of the process: the raw events and
// tasks consumers, and the tasks, webhooks and dead letter producers.
type ServerConfig struct {
	ClientID       string
	ScramAlgorithm string
	TLS            bool
	Servers        []string
	UseTelemetry   bool
	UserName       string
	Password       string
	TracerProvider tracing.TracerProvider
}

func NewKafkaClient(serverConfig ServerConfig, config []kgo.Opt) (*kgo.Client, error) {
	opts, err := clientOptions(serverConfig, config)
	if err != nil {
		return nil, err
	}

	return kgo.NewClient(opts...)
}

// clientOptions puts the connection settings first so that the options of a
// consumer or producer can override them.
func clientOptions(serverConfig ServerConfig, config []kgo.Opt) ([]kgo.Opt, error) {
	clientID := serverConfig.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(serverConfig.Servers...),
		kgo.ClientID(clientID),
		kgo.WithLogger(kslog.New(slog.Default().With("component", "kafka"))),
	}

	if serverConfig.UseTelemetry && serverConfig.TracerProvider != nil {
		if hooks := serverConfig.TracerProvider.GetKafkaHooks(); len(hooks) > 0 {
			opts = append(opts, kgo.WithHooks(hooks...))
		}
	}

	if serverConfig.ScramAlgorithm != "" {
		scramAuth := scram.Auth{
			User: serverConfig.UserName,
			Pass: serverConfig.Password,
		}

		switch serverConfig.ScramAlgorithm {
		case Scram256:
			opts = append(opts, kgo.SASL(scramAuth.AsSha256Mechanism()))
		case Scram512:
			opts = append(opts, kgo.SASL(scramAuth.AsSha512Mechanism()))
		default:
			return nil, fmt.Errorf("unsupported kafka scram algorithm: %q", serverConfig.ScramAlgorithm)
		}
	}

	if serverConfig.TLS {
		opts = append(opts, kgo.DialTLS())
	}

	return append(opts, config...), nil
}
