package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
)

func noEnv(string) string { return "" }

// stubDependencies подменяет фабрику зависимостей на время теста.
func stubDependencies(t *testing.T, deps func(config) (offsetClient, partitionConsumerSource, replayProducer, error)) {
	t.Helper()
	previous := newReplayDependencies
	t.Cleanup(func() { newReplayDependencies = previous })
	newReplayDependencies = deps
}

func TestParseBrokers(t *testing.T) {
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	require.Empty(t, parseBrokers(" , "))
}

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-target-topic=bookstore.order.events",
		"-limit=10",
		"-max-replays=5",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
		"-order-id= order-7 ",
		"-original-topic=" + kafka.TopicPaymentEvents,
	}, noEnv)
	require.NoError(t, err)
	require.Equal(t, config{
		brokers:       []string{"broker-1:9092", "broker-2:9092"},
		sourceTopic:   kafka.TopicDeadLetterQueue,
		targetTopic:   "bookstore.order.events",
		limit:         10,
		maxReplays:    5,
		execute:       true,
		fromNewest:    true,
		idleTimeout:   3 * time.Second,
		orderID:       "order-7",
		originalTopic: kafka.TopicPaymentEvents,
	}, cfg)

	cfg, err = readConfig(nil, func(key string) string {
		if key == envBrokers {
			return "env-broker:9092"
		}
		return ""
	})
	require.NoError(t, err)
	require.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
	require.Equal(t, defaultReplayLimit, cfg.limit)
	require.Equal(t, defaultMaxReplays, cfg.maxReplays)
	require.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
	require.False(t, cfg.execute)
}

func TestReadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown flag", args: []string{"-nope"}, want: "flag provided but not defined"},
		{name: "no brokers", args: []string{"-brokers= "}, want: "kafka brokers are required"},
		{name: "empty source", args: []string{"-brokers=b:9092", "-source-topic="}, want: "source-topic is required"},
		{name: "loop", args: []string{"-brokers=b:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, want: "must differ"},
		{name: "limit", args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit must be > 0"},
		{name: "max replays", args: []string{"-brokers=b:9092", "-max-replays=-1"}, want: "max-replays must be > 0"},
		{name: "idle timeout", args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readConfig(tt.args, noEnv)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRun_ClosesDependencies(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 1
	cfg.execute = true

	stubDependencies(t, func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	})
	require.ErrorContains(t, run(context.Background(), cfg), "deps failed")

	cluster := newCluster().with(0, 0, paymentLetter(0))
	producer := &recordingProducer{}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return cluster, cluster, producer, nil
	}

	require.NoError(t, run(context.Background(), cfg))
	require.Len(t, producer.sent, 1)
	require.True(t, cluster.closed)
	require.True(t, producer.closed)
}

func TestMain_DryRun(t *testing.T) {
	args := os.Args
	t.Cleanup(func() { os.Args = args })

	cluster := newCluster().with(0, 0, paymentLetter(0))
	var got config
	stubDependencies(t, func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		got = cfg
		return cluster, cluster, nil, nil
	})

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms", "-order-id=order-1"}
	main()

	require.Equal(t, "order-1", got.orderID)
	require.False(t, got.execute)
	require.True(t, cluster.closed)
	require.Equal(t, []consumeCall{{partition: 0, offset: 0}}, cluster.consumed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
}
