// Command dlq-reprocess возвращает сообщения из dead letter queue в исходные топики.
// По умолчанию работает в dry-run и только печатает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/version"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	defaultMaxReplays  = 3

	envBrokers = "BOOKSTORE_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	maxReplays  int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration

	// Фильтры: пустое значение пропускает всё.
	orderID       string
	originalTopic string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// replayProducer — часть kafka.Producer, нужная для повторной публикации.
type replayProducer interface {
	PublishRaw(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

// consumerSource приводит sarama.Consumer к partitionConsumerSource.
type consumerSource struct{ sarama.Consumer }

func (c consumerSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return c.Consumer.ConsumePartition(topic, partition, offset)
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = version.ClientID("bookstore-dlq-reprocess")
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if !cfg.execute {
		return client, consumerSource{consumer}, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, log.WithField("component", "dlq-reprocess"))
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, consumerSource{consumer}, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg     config
		brokers string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (fallback: "+envBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	fs.StringVar(&cfg.targetTopic, "target-topic", "", "replay into this topic instead of the original one")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max messages to scan across partitions")
	fs.IntVar(&cfg.maxReplays, "max-replays", defaultMaxReplays, "leave messages replayed this many times in the DLQ")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replays; without it the run is a dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	fs.StringVar(&cfg.orderID, "order-id", "", "replay only letters keyed by this order")
	fs.StringVar(&cfg.originalTopic, "original-topic", "", "replay only letters that failed on this topic")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv(envBrokers)
	}
	cfg.brokers = parseBrokers(brokers)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	cfg.orderID = strings.TrimSpace(cfg.orderID)
	cfg.originalTopic = strings.TrimSpace(cfg.originalTopic)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envBrokers)
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == cfg.sourceTopic:
		return config{}, errors.New("target-topic must differ from source-topic")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.maxReplays <= 0:
		return config{}, errors.New("max-replays must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	offsets, source, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range []io.Closer{producer, source, offsets} {
			if c != nil {
				_ = c.Close()
			}
		}
	}()

	r := &replayer{
		cfg:      cfg,
		offsets:  offsets,
		source:   source,
		producer: producer,
		logger:   log.WithField("component", "dlq-reprocess"),
	}
	_, err = r.run(ctx)
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
