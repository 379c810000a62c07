package setup

import (
	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq"
)

// InitRabbitMQ 未配置 URL 时返回 nil, 对象删除改为同步执行
func InitRabbitMQ(cfg *config.RabbitMQConfig) (*mq.RabbitMQClient, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return mq.NewRabbitMQClient(cfg.URL)
}
