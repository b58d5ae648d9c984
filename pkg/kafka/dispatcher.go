package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ask-docs-go/internal/config"
	"ask-docs-go/internal/event"
	"ask-docs-go/pkg/log"
)

// Handler 处理某一主题上的单个事件。同一个消费者实例内的调用是串行的。
type Handler interface {
	Handle(ctx context.Context, evt event.Event) error
}

// subscription 将一个主题/消费组绑定到对应的处理器。
type subscription struct {
	topic   string
	group   string
	handler Handler
}

// Dispatcher 维护主题到处理器的分发表，启动时为每个注册项
// 建立一个消费循环。同一消费组的多个实例分摊主题分区。
type Dispatcher struct {
	brokers []string
	subs    []subscription
}

// NewDispatcher 创建一个空的分发器。
func NewDispatcher(cfg config.KafkaConfig) *Dispatcher {
	return &Dispatcher{brokers: strings.Split(cfg.Brokers, ",")}
}

// Register 在分发表中登记一个主题处理器。必须在 Start 之前调用。
func (d *Dispatcher) Register(topic, group string, h Handler) {
	d.subs = append(d.subs, subscription{topic: topic, group: group, handler: h})
}

// Start 为每个注册项启动一个消费循环，阻塞直到 ctx 取消且所有循环退出。
func (d *Dispatcher) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sub := range d.subs {
		wg.Add(1)
		go func(sub subscription) {
			defer wg.Done()
			d.consumeLoop(ctx, sub)
		}(sub)
	}
	wg.Wait()
}

// consumeLoop 是单个主题/消费组的消费循环。
// offset 在处理器返回之后才提交：消费中途崩溃会导致重投递而不是丢失；
// 处理器返回错误时仍然提交，事件记录日志后丢弃，不做重试。
func (d *Dispatcher) consumeLoop(ctx context.Context, sub subscription) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  d.brokers,
		Topic:    sub.topic,
		GroupID:  sub.group,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动, topic: '%s', group: '%s'", sub.topic, sub.group)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Infof("Kafka 消费者退出, topic: '%s'", sub.topic)
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			time.Sleep(time.Second)
			continue
		}

		evt, err := decodeEvent(m.Value)
		if err != nil {
			// 畸形事件：记录日志并提交 offset 丢弃，避免阻塞分区
			log.Errorf("丢弃畸形事件, topic: %s, offset: %d, err: %v, value: %s",
				sub.topic, m.Offset, err, string(m.Value))
			commit(ctx, r, m)
			continue
		}

		log.Infof("[Dispatcher] 收到事件, topic: %s, type: %s, doc_id: %s, offset: %d",
			sub.topic, evt.EventType, evt.DocID, m.Offset)

		if err := sub.handler.Handle(ctx, evt); err != nil {
			// 处理失败只记录日志，不触发重投递
			log.Errorf("[Dispatcher] 事件处理失败, topic: %s, doc_id: %s, err: %v",
				sub.topic, evt.DocID, err)
		}
		commit(ctx, r, m)
	}
}

// commit 提交消息 offset，失败只记录日志（下次会重投递，处理器需容忍重复）。
func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// decodeEvent 反序列化并校验事件信封。
func decodeEvent(value []byte) (event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return event.Event{}, fmt.Errorf("无法解析事件 JSON: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}
	return evt, nil
}
