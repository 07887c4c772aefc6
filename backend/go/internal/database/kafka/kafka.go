package kafka

import (
	"GeoCMS/backend/go/internal/config"
	"GeoCMS/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Client 持有 Kafka 的管理连接以及生产任务事件的 writer。
type Client struct {
	Writer *kafka.Writer
	Conn   *kafka.Conn // 用于管理的连接
	Config *config.KafkaConfig
}

// NewClient 连接到 Kafka，并在 CreateTopic 为 true 时自动创建任务事件主题。
func NewClient(cfg *config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("未配置 Kafka brokers")
	}
	if cfg.TaskTopic == "" {
		return nil, errors.New("未配置 Kafka 任务事件主题")
	}
	log := logger.New("kafka", "", "")

	// 1. 建立管理连接
	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka 初始化连接失败: %w", err)
	}

	// 2. 按需创建主题
	if cfg.CreateTopic {
		if err := ensureTopic(conn, cfg.TaskTopic); err != nil {
			conn.Close()
			return nil, err
		}
	}

	// 3. 创建 writer
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TaskTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}

	log.WithField("topic", cfg.TaskTopic).Info("成功初始化 Kafka 客户端")
	return &Client{Writer: writer, Conn: conn, Config: cfg}, nil
}

func ensureTopic(conn *kafka.Conn, topic string) error {
	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	for _, p := range partitions {
		if p.Topic == topic {
			return nil
		}
	}

	// 主题只能在 controller 上创建
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("无法获取 Kafka controller: %w", err)
	}
	ctrlConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("连接 Kafka controller 失败: %w", err)
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("自动创建 Kafka 主题 '%s' 失败: %w", topic, err)
	}
	logger.New("kafka", "", "").WithField("topic", topic).Info("已创建 Kafka 主题")
	return nil
}

// Close 安全地关闭 Kafka writer 和管理连接。
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka writer 失败: %w", err))
		}
	}
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka 管理连接失败: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck 检查 Kafka 连接的健康状况。
func (c *Client) HealthCheck(_ context.Context) error {
	if c == nil || c.Conn == nil {
		return errors.New("kafka 客户端未初始化，无法进行健康检查")
	}
	_, err := c.Conn.Controller()
	return err
}
