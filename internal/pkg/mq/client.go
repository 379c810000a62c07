package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Message 投递到队列的一条任务
type Message struct {
	ID   string // 用作 MessageId, 方便排查重复投递
	Body []byte
}

// Publisher 向队列投递消息
type Publisher interface {
	Publish(ctx context.Context, queueName string, msg Message) error
}

// RabbitMQClient 一个连接一个通道, 发布和消费共用
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu       sync.Mutex // amqp.Channel 不支持并发发布
	declared map[string]bool
}

func NewRabbitMQClient(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &RabbitMQClient{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
	}, nil
}

// DeclareQueue 声明持久化队列, 同一队列只声明一次
func (c *RabbitMQClient) DeclareQueue(queueName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.declareLocked(queueName)
}

func (c *RabbitMQClient) declareLocked(queueName string) error {
	if c.declared[queueName] {
		return nil
	}
	if _, err := c.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	c.declared[queueName] = true
	return nil
}

// Publish 持久化投递; 默认交换机会丢弃发往未声明队列的消息, 所以先声明
func (c *RabbitMQClient) Publish(ctx context.Context, queueName string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.declareLocked(queueName); err != nil {
		return err
	}
	return c.channel.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		DeliveryMode: amqp.Persistent,
		Body:         msg.Body,
	})
}

// Consume 手动 ack, prefetch 限制同时处理的消息数, ctx 取消后停止分发
func (c *RabbitMQClient) Consume(ctx context.Context, queueName string, prefetch int, handler func(msg amqp.Delivery)) error {
	if err := c.DeclareQueue(queueName); err != nil {
		return err
	}
	if prefetch > 0 {
		if err := c.channel.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	msgs, err := c.channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("RabbitMQ delivery channel closed", zap.String("queue", queueName))
					return
				}
				handler(msg)
			}
		}
	}()

	logger.Info("consuming queue", zap.String("queue", queueName), zap.Int("prefetch", prefetch))
	return nil
}

func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
