// Package kafka 提供了事件总线的生产者与消费者分发器。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"ask-docs-go/internal/config"
	"ask-docs-go/internal/event"
	"ask-docs-go/pkg/log"
)

// Publisher 是事件发布方的最小接口，便于在测试中替换。
type Publisher interface {
	Publish(ctx context.Context, topic string, evt event.Event) error
}

// Producer 封装了一个 kafka.Writer，按消息指定主题发布事件。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。RequireAll 保证 Publish 在 broker
// 确认接收之前不会返回。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 将事件序列化为 JSON 并同步发送到指定主题。
// 调用方阻塞直到 broker 接受该消息（至少一次投递）。
func (p *Producer) Publish(ctx context.Context, topic string, evt event.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(evt.DocID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("发送事件到主题 %s 失败: %w", topic, err)
	}

	log.Infof("[Producer] 事件已发布, topic: %s, type: %s, doc_id: %s", topic, evt.EventType, evt.DocID)
	return nil
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}
