// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"scribo-go/internal/config"
	"scribo-go/pkg/events"
	"scribo-go/pkg/log"
)

// EventProcessor defines the interface for any service that can process a scoring event.
// This decouples the Kafka consumer from the concrete indexer implementation.
type EventProcessor interface {
	Process(ctx context.Context, ev events.ScoringEvent) error
}

// Producer 发布采点事件。采点请求本身不依赖事件投递成功。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// ProduceScoringEvent 发送一个采点完成事件到 Kafka。
func (p *Producer) ProduceScoringEvent(ctx context.Context, ev events.ScoringEvent) error {
	evBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SubmissionID),
		Value: evBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者循环来处理采点事件。
// 索引属于尽力而为的分析链路：处理失败只记录日志并提交 offset，
// 幂等的文档 ID 保证之后的重新采点会覆盖旧文档。
func StartConsumer(cfg config.KafkaConfig, processor EventProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "scribo-go-indexer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var ev events.ScoringEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := processor.Process(context.Background(), ev); err != nil {
			log.Errorf("处理采点事件失败: submission=%s, error: %v", ev.SubmissionID, err)
		} else {
			log.Infof("采点事件已索引: submission=%s", ev.SubmissionID)
		}
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}
