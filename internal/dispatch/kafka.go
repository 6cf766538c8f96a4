package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shareplane/backend/internal/config"
	"github.com/shareplane/backend/internal/models"
	"github.com/shareplane/backend/pkg/logger"
)

// command is the wire envelope for every dispatched message. Backend
// messages are keyed by target host so all commands for one host land
// on the same partition in order.
type command struct {
	Action  string      `json:"action"`
	Host    string      `json:"host,omitempty"`
	Payload interface{} `json:"payload"`
}

// KafkaDispatcher publishes scheduler placement requests and backend
// commands as JSON messages. Writes block until the brokers ack; remote
// completion is reported out of band.
type KafkaDispatcher struct {
	writer         *kafka.Writer
	schedulerTopic string
	backendTopic   string
}

func NewKafkaDispatcher(cfg config.KafkaConfig) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Endpoints...),
		MaxAttempts:  10,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &KafkaDispatcher{
		writer:         w,
		schedulerTopic: cfg.SchedulerTopic,
		backendTopic:   cfg.BackendTopic,
	}
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

func (d *KafkaDispatcher) publish(ctx context.Context, topic string, key string, cmd command) error {
	value, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		logger.Error("dispatch_publish_failed", err, map[string]interface{}{
			"topic":  topic,
			"action": cmd.Action,
			"key":    key,
		})
		return err
	}

	logger.Info("dispatch_published", map[string]interface{}{
		"topic":  topic,
		"action": cmd.Action,
		"key":    key,
	})
	return nil
}

func (d *KafkaDispatcher) CreateShareGroup(ctx context.Context, spec RequestSpec) error {
	return d.publish(ctx, d.schedulerTopic, spec.ShareGroupID.String(), command{
		Action:  "create_share_group",
		Payload: spec,
	})
}

type kafkaBackend KafkaDispatcher

// Backend returns the dispatcher's backend-host facing half.
func (d *KafkaDispatcher) Backend() BackendDispatcher {
	return (*kafkaBackend)(d)
}

func (b *kafkaBackend) publish(ctx context.Context, host string, action string, payload interface{}) error {
	return (*KafkaDispatcher)(b).publish(ctx, b.backendTopic, host, command{
		Action:  action,
		Host:    host,
		Payload: payload,
	})
}

func (b *kafkaBackend) CreateShareGroup(ctx context.Context, group *models.ShareGroup, host string) error {
	return b.publish(ctx, host, "create_share_group", group)
}

func (b *kafkaBackend) DeleteShareGroup(ctx context.Context, group *models.ShareGroup) error {
	return b.publish(ctx, group.Host, "delete_share_group", group)
}

func (b *kafkaBackend) CreateGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot, host string) error {
	return b.publish(ctx, host, "create_group_snapshot", snapshot)
}

func (b *kafkaBackend) DeleteGroupSnapshot(ctx context.Context, snapshot *models.GroupSnapshot, host string) error {
	return b.publish(ctx, host, "delete_group_snapshot", snapshot)
}

func (b *kafkaBackend) CreateShare(ctx context.Context, share *models.Share, host string) error {
	return b.publish(ctx, host, "create_share", share)
}
