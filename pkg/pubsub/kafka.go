package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

// fixedTopics are created on startup; every channel maps onto one of them.
var fixedTopics = []string{"signal-to-participants"}

// channelToTopicAndKey converts a Redis-style channel to a Kafka topic and message key.
//
//	"signal:session:S1:to_participants" → topic: "signal-to-participants", key: "S1"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	// Expected format: {prefix}:session:{sessionID}:to_{target}
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "session" || !strings.HasPrefix(parts[3], "to_") {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	prefix, sessionID, suffix := parts[0], parts[2], parts[3]

	topic = prefix + "-" + strings.ReplaceAll(suffix, "_", "-")
	return topic, sessionID, nil
}

// patternToTopic converts a Redis-style subscribe pattern to a Kafka topic.
//
//	"signal:session:*:to_participants" → "signal-to-participants"
func patternToTopic(pattern string) (string, error) {
	channel := strings.ReplaceAll(pattern, "*", "_placeholder_")
	topic, _, err := channelToTopicAndKey(channel)
	return topic, err
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

// KafkaPubSub implements PubSub interface using Apache Kafka. Session ids
// are message keys, so one session's events stay ordered on a partition.
type KafkaPubSub struct {
	producer      *kafka.Producer
	subscriptions map[string]*kafkaSubscription // key (channel or pattern) → subscription
	config        KafkaConfig
	mu            sync.Mutex
	doneCh        chan struct{}
}

// NewKafkaPubSub creates a new Kafka-based PubSub instance.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer:      p,
		subscriptions: make(map[string]*kafkaSubscription),
		config:        cfg,
		doneCh:        make(chan struct{}),
	}

	go kps.deliveryReportHandler()

	if err := kps.ensureTopics(); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics, may already exist")
	}

	return kps, nil
}

func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": k.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := make([]kafka.TopicSpecification, 0, len(fixedTopics))
	for _, topic := range fixedTopics {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	l := pkglog.L()
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}

	return nil
}

func (k *KafkaPubSub) deliveryReportHandler() {
	l := pkglog.L()
	for e := range k.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l.Error().Err(ev.TopicPartition.Error).Msg("kafka pubsub delivery failed")
		}
	}
	close(k.doneCh)
}

// Publish publishes an event to the specified channel (converted to Kafka topic + key).
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(key),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// Subscribe subscribes to a specific channel, filtering messages by session id.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, sessionID, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel: %w", err)
	}

	return k.subscribeToTopic(ctx, channel, topic, sessionID)
}

// SubscribePattern subscribes to channels matching a pattern (consumes all messages on the topic).
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pattern: %w", err)
	}

	return k.subscribeToTopic(ctx, pattern, topic, "")
}

// consumerGroupID gives each process, and each filtered channel within it,
// its own group so that no two consumers split a session's events.
func (k *KafkaPubSub) consumerGroupID(subKey, filterSessionID string) string {
	groupID := k.config.GroupID
	if groupID == "" {
		groupID = "pubsub-default"
	}
	if k.config.InstanceID != "" {
		groupID = fmt.Sprintf("%s-%s", groupID, k.config.InstanceID)
	}
	if filterSessionID != "" {
		groupID = fmt.Sprintf("%s-%s", groupID, subKey)
	}
	return sanitizeGroupID(groupID)
}

func (k *KafkaPubSub) subscribeToTopic(ctx context.Context, subKey, topic, filterSessionID string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.subscriptions[subKey]; ok {
		existing.cancel()
		existing.consumer.Close()
		delete(k.subscriptions, subKey)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.config.Brokers,
		"group.id":                k.consumerGroupID(subKey, filterSessionID),
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	eventCh := make(chan *Event, 100)

	k.subscriptions[subKey] = &kafkaSubscription{
		consumer: c,
		cancel:   cancel,
	}

	go k.consumeMessages(subCtx, c, eventCh, filterSessionID)

	return eventCh, nil
}

func (k *KafkaPubSub) consumeMessages(ctx context.Context, c *kafka.Consumer, eventCh chan<- *Event, filterSessionID string) {
	defer close(eventCh)
	l := pkglog.L()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := c.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if filterSessionID != "" && string(e.Key) != filterSessionID {
				continue
			}

			var event Event
			if err := json.Unmarshal(e.Value, &event); err != nil {
				l.Warn().Err(err).Msg("kafka pubsub: failed to unmarshal event")
				continue
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Str(pkglog.FieldSessionID, event.SessionID).Msg("kafka pubsub subscriber full, event dropped")
			}

		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka pubsub error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Unsubscribe unsubscribes from a channel or pattern.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if sub, ok := k.subscriptions[channel]; ok {
		sub.cancel()
		if err := sub.consumer.Close(); err != nil {
			return fmt.Errorf("failed to close consumer: %w", err)
		}
		delete(k.subscriptions, channel)
	}

	return nil
}

// Close closes all subscriptions and the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, sub := range k.subscriptions {
		sub.cancel()
		sub.consumer.Close()
		delete(k.subscriptions, key)
	}

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.doneCh

	return nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}
