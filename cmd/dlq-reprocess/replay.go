package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
)

var (
	errReplaysExhausted = errors.New("replay limit exceeded")
	errFiltered         = errors.New("letter does not match filters")
)

type replayMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

// replayStats — счётчики прогона; scanned включает все прочитанные сообщения.
type replayStats struct {
	scanned   int
	replayed  int
	filtered  int
	skipped   int
	exhausted int
}

func (s *replayStats) merge(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.filtered += other.filtered
	s.skipped += other.skipped
	s.exhausted += other.exhausted
}

type replayer struct {
	cfg      config
	offsets  offsetClient
	source   partitionConsumerSource
	producer replayProducer
	logger   *log.Entry
}

// run обходит партиции по возрастанию номера, пока не исчерпан общий limit.
func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.offsets == nil || r.source == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"partitions":   len(partitions),
		"mode":         mode,
		"limit":        r.cfg.limit,
	}).Info("dlq replay started")

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := r.partition(ctx, partition, budget)
		total.merge(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"scanned":   total.scanned,
		"replayed":  total.replayed,
		"filtered":  total.filtered,
		"skipped":   total.skipped,
		"exhausted": total.exhausted,
	}).Info("dlq replay finished")
	return total, nil
}

// window возвращает диапазон [start, end) для чтения. Сообщения, пришедшие
// в DLQ во время прогона, в него не попадают.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if r.cfg.fromNewest {
		return max(newest-int64(budget), oldest), newest, nil
	}
	return oldest, newest, nil
}

func (r *replayer) partition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	start, end, err := r.window(partition, budget)
	if err != nil || start >= end {
		return stats, err
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle, moving on")
			return stats, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle разбирает одно письмо и публикует его повтор; ошибка прерывает прогон
// только если не удалась публикация.
func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	logger := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       string(msg.Key),
	})

	replay, err := buildReplay(msg, r.cfg)
	switch {
	case errors.Is(err, errFiltered):
		stats.filtered++
		return nil
	case errors.Is(err, errReplaysExhausted):
		stats.exhausted++
		logger.Warn("letter exceeded replay limit, left in dlq")
		return nil
	case err != nil:
		stats.skipped++
		logger.WithError(err).Warn("letter cannot be replayed")
		return nil
	}

	if !r.cfg.execute {
		stats.replayed++
		logger.WithFields(log.Fields{
			"target_topic": replay.topic,
			"retry_count":  replay.headers[kafka.HeaderRetryCount],
		}).Info("replay candidate")
		return nil
	}
	if err := r.producer.PublishRaw(replay.topic, replay.key, replay.value, replay.headers); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	stats.replayed++
	return nil
}

// buildReplay восстанавливает исходное сообщение. Счётчик повторов растёт
// на единицу, чтобы снова упавшее сообщение не ходило по кругу.
func buildReplay(msg *sarama.ConsumerMessage, cfg config) (replayMessage, error) {
	letter, err := kafka.ParseDeadLetter(msg)
	if err != nil {
		return replayMessage{}, err
	}
	if (cfg.orderID != "" && letter.Key != cfg.orderID) ||
		(cfg.originalTopic != "" && letter.OriginalTopic != cfg.originalTopic) {
		return replayMessage{}, errFiltered
	}
	if letter.RetryCount >= cfg.maxReplays {
		return replayMessage{}, errReplaysExhausted
	}

	topic := letter.OriginalTopic
	if cfg.targetTopic != "" {
		topic = cfg.targetTopic
	}
	return replayMessage{
		topic:   topic,
		key:     letter.Key,
		value:   letter.Value,
		headers: map[string]string{kafka.HeaderRetryCount: strconv.Itoa(letter.RetryCount + 1)},
	}, nil
}
