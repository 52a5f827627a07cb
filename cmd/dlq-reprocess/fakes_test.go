package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/messaging/kafka"
)

// fakeLog — содержимое одной партиции DLQ. letters лежат с offset oldest,
// late дописываются после снятия newest и в окно не входят.
type fakeLog struct {
	oldest      int64
	letters     []*sarama.ConsumerMessage
	late        []*sarama.ConsumerMessage
	hold        bool // канал открыт и ничего не отдаёт
	consumerErr error
	pc          *fakePartitionConsumer
}

func (l *fakeLog) newest() int64 { return l.oldest + int64(len(l.letters)) }

type consumeCall struct {
	partition int32
	offset    int64
}

// fakeCluster отвечает и за offsets, и за чтение партиций.
type fakeCluster struct {
	logs          map[int32]*fakeLog
	partitionsErr error
	offsetErr     error
	consumeErr    error
	consumed      []consumeCall
	closed        bool
}

func newCluster() *fakeCluster {
	return &fakeCluster{logs: make(map[int32]*fakeLog)}
}

// with кладёт письма в партицию, проставляя Partition и Offset.
func (c *fakeCluster) with(partition int32, oldest int64, letters ...*sarama.ConsumerMessage) *fakeCluster {
	l := &fakeLog{oldest: oldest, letters: letters}
	for i, msg := range letters {
		msg.Partition, msg.Offset = partition, oldest+int64(i)
	}
	c.logs[partition] = l
	return c
}

func (c *fakeCluster) log(partition int32) *fakeLog { return c.logs[partition] }

func (c *fakeCluster) Partitions(string) ([]int32, error) {
	if c.partitionsErr != nil {
		return nil, c.partitionsErr
	}
	// Порядок map случаен: replayer обязан сортировать сам.
	return slices.Collect(maps.Keys(c.logs)), nil
}

func (c *fakeCluster) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if c.offsetErr != nil {
		return 0, c.offsetErr
	}
	l, ok := c.logs[partition]
	if !ok {
		return 0, fmt.Errorf("unknown partition %d", partition)
	}
	if marker == sarama.OffsetOldest {
		return l.oldest, nil
	}
	return l.newest(), nil
}

func (c *fakeCluster) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	c.consumed = append(c.consumed, consumeCall{partition: partition, offset: offset})
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	l, ok := c.logs[partition]
	if !ok {
		return nil, fmt.Errorf("unknown partition %d", partition)
	}

	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(l.letters)+len(l.late)),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	l.pc = pc
	if l.consumerErr != nil {
		pc.errors <- &sarama.ConsumerError{Partition: partition, Err: l.consumerErr}
	}
	if l.hold {
		return pc, nil
	}

	for _, msg := range l.letters {
		if msg.Offset >= offset {
			pc.messages <- msg
		}
	}
	for i, msg := range l.late {
		msg.Partition, msg.Offset = partition, l.newest()+int64(i)
		pc.messages <- msg
	}
	if len(l.late) == 0 {
		close(pc.messages)
		close(pc.errors)
	}
	return pc, nil
}

func (c *fakeCluster) Close() error {
	c.closed = true
	return nil
}

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (p *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *fakePartitionConsumer) Close() error {
	p.closed = true
	return nil
}

type published struct {
	topic   string
	key     string
	headers map[string]string
}

type recordingProducer struct {
	err    error
	sent   []published
	closed bool
}

func (p *recordingProducer) PublishRaw(topic, key string, _ []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, headers: headers})
	return nil
}

func (p *recordingProducer) Close() error {
	p.closed = true
	return nil
}

// letter собирает письмо DLQ; offset проставит fakeCluster.with.
func letter(originalTopic, key, value string, retry int) *sarama.ConsumerMessage {
	headers := []*sarama.RecordHeader{
		{Key: []byte(kafka.HeaderErrorMessage), Value: []byte("order not found")},
		{Key: []byte(kafka.HeaderRetryCount), Value: []byte(strconv.Itoa(retry))},
	}
	if originalTopic != "" {
		headers = append(headers, &sarama.RecordHeader{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(originalTopic)})
	}
	return &sarama.ConsumerMessage{Key: []byte(key), Value: []byte(value), Headers: headers}
}

func paymentLetter(retry int) *sarama.ConsumerMessage {
	return letter(kafka.TopicPaymentEvents, "order-1", `{"event_type":"payment.captured","order_id":"order-1"}`, retry)
}

func orderLetter(key string, retry int) *sarama.ConsumerMessage {
	return letter(kafka.TopicOrderEvents, key, `{"event_type":"order.paid"}`, retry)
}
