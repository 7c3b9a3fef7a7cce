package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
)

// ==================== 常量定义 ====================

const (
	// 默认超时时间
	defaultMessageHandleTimeout = 30 * time.Second

	// 用户代理标识
	defaultUserAgent = "publish-gateway"

	// 日志前缀
	logPrefix = "[nsq] "

	// 错误消息常量
	errorMessageTopicRequired        = "topic is required"
	errorMessageChannelRequired      = "channel is required"
	errorMessageHandlerRequired      = "handler is required"
	errorMessageNoAddressConfigured  = "no nsqd address or lookupd configured"
	errorMessageDLQPublishFailed     = "failed to publish message to DLQ"
	errorMessageConsumerCreationFail = "failed to create NSQ consumer"
)

// ==================== 类型定义 ====================

// HandlerFunc 消息处理函数类型
type HandlerFunc func(ctx context.Context, payload []byte, attempts uint16) error

// NSQConsumer NSQ 消费者
// 拉取上游 "content ready" 发布请求,毒消息进 DLQ
type NSQConsumer struct {
	config  *nsq.Config
	topic   string
	channel string

	nsqdAddresses    []string // nsqd TCP 地址
	lookupdAddresses []string // lookupd HTTP 地址

	consumer *nsq.Consumer
	handler  HandlerFunc

	maxInFlight int
	concurrency int

	// DLQ (死信队列) 配置
	dlqTopic             string
	maxAttemptsBeforeDLQ uint16
	dlqProducer          *nsq.Producer

	messageHandleTimeout time.Duration
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Topic                string
	Channel              string
	MaxInFlight          int
	Concurrency          int
	NsqdAddresses        []string
	LookupdAddresses     []string
	DLQTopic             string
	MaxAttemptsBeforeDLQ uint16
	MessageHandleTimeout time.Duration
	Handler              HandlerFunc
}

// ==================== 构造函数 ====================

// NewNSQConsumerFromConfig 从配置创建 NSQ 消费者
func NewNSQConsumerFromConfig(config ConsumerConfig) (*NSQConsumer, error) {
	if err := validateConsumerConfig(config); err != nil {
		return nil, err
	}

	nsqConfig := createNSQConfig(config.MaxInFlight)
	consumer, err := createNSQConsumer(config.Topic, config.Channel, nsqConfig)
	if err != nil {
		return nil, err
	}

	timeout := config.MessageHandleTimeout
	if timeout == 0 {
		timeout = defaultMessageHandleTimeout
	}

	return &NSQConsumer{
		config:               nsqConfig,
		topic:                config.Topic,
		channel:              config.Channel,
		nsqdAddresses:        config.NsqdAddresses,
		lookupdAddresses:     config.LookupdAddresses,
		consumer:             consumer,
		handler:              config.Handler,
		maxInFlight:          config.MaxInFlight,
		concurrency:          config.Concurrency,
		dlqTopic:             config.DLQTopic,
		maxAttemptsBeforeDLQ: config.MaxAttemptsBeforeDLQ,
		messageHandleTimeout: timeout,
	}, nil
}

// ==================== 配置验证 ====================

// validateConsumerConfig 验证消费者配置
func validateConsumerConfig(config ConsumerConfig) error {
	if config.Topic == "" {
		return errors.New(errorMessageTopicRequired)
	}

	if config.Channel == "" {
		return errors.New(errorMessageChannelRequired)
	}

	if config.Handler == nil {
		return errors.New(errorMessageHandlerRequired)
	}

	if len(config.NsqdAddresses) == 0 && len(config.LookupdAddresses) == 0 {
		return errors.New(errorMessageNoAddressConfigured)
	}

	return nil
}

// createNSQConfig 创建 NSQ 配置
func createNSQConfig(maxInFlight int) *nsq.Config {
	config := nsq.NewConfig()

	if maxInFlight > 0 {
		config.MaxInFlight = maxInFlight
	}

	config.UserAgent = defaultUserAgent

	return config
}

// createNSQConsumer 创建 NSQ 消费者实例
func createNSQConsumer(topic string, channel string, config *nsq.Config) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(topic, channel, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageConsumerCreationFail, err)
	}

	consumer.SetLogger(log.New(os.Stdout, logPrefix, log.LstdFlags), nsq.LogLevelInfo)

	return consumer, nil
}

// ==================== DLQ 配置 ====================

// AttachDLQProducer 附加 DLQ 生产者
func (consumer *NSQConsumer) AttachDLQProducer(nsqdAddress string) error {
	if !consumer.isDLQConfigured() || nsqdAddress == "" {
		return nil
	}

	producer, err := nsq.NewProducer(nsqdAddress, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	consumer.dlqProducer = producer
	return nil
}

// isDLQConfigured 检查是否配置了 DLQ
func (consumer *NSQConsumer) isDLQConfigured() bool {
	return consumer.dlqTopic != ""
}

// ==================== 消息处理 ====================

// Run 启动消费者,阻塞直到 Stop
func (consumer *NSQConsumer) Run() error {
	consumer.consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(message *nsq.Message) error {
		return consumer.handleMessage(message)
	}), consumer.concurrency)

	if err := consumer.connectToNSQ(); err != nil {
		return err
	}

	<-consumer.consumer.StopChan
	return nil
}

// handleMessage 处理单条消息
func (consumer *NSQConsumer) handleMessage(message *nsq.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), consumer.messageHandleTimeout)
	defer cancel()

	err := consumer.handler(ctx, message.Body, message.Attempts)
	if err == nil {
		return nil
	}

	return consumer.handleFailedMessage(message, err)
}

// handleFailedMessage 处理失败的消息
func (consumer *NSQConsumer) handleFailedMessage(message *nsq.Message, originalError error) error {
	if !consumer.shouldSendToDLQ(message) {
		return originalError
	}

	if err := consumer.dlqProducer.Publish(consumer.dlqTopic, message.Body); err != nil {
		log.Printf("%s: %v, original error: %v", errorMessageDLQPublishFailed, err, originalError)
		return originalError
	}

	// 成功发送到 DLQ,返回 nil 告诉 NSQ 不再重试
	log.Printf("Message sent to DLQ after %d attempts", message.Attempts)
	return nil
}

// shouldSendToDLQ 判断是否应该发送到 DLQ
func (consumer *NSQConsumer) shouldSendToDLQ(message *nsq.Message) bool {
	if !consumer.isDLQConfigured() || consumer.dlqProducer == nil {
		return false
	}

	return message.Attempts >= consumer.maxAttemptsBeforeDLQ
}

// ==================== 连接管理 ====================

// connectToNSQ 连接到 NSQ
func (consumer *NSQConsumer) connectToNSQ() error {
	for _, address := range consumer.nsqdAddresses {
		if err := consumer.consumer.ConnectToNSQD(address); err != nil {
			return fmt.Errorf("failed to connect to nsqd %s: %w", address, err)
		}
		log.Printf("Connected to nsqd: %s", address)
	}

	for _, address := range consumer.lookupdAddresses {
		if err := consumer.consumer.ConnectToNSQLookupd(address); err != nil {
			return fmt.Errorf("failed to connect to lookupd %s: %w", address, err)
		}
		log.Printf("Connected to lookupd: %s", address)
	}

	return nil
}

// ==================== 生命周期管理 ====================

// Stop 停止消费者
func (consumer *NSQConsumer) Stop() {
	if consumer.consumer != nil {
		log.Printf("Stopping NSQ consumer for topic: %s", consumer.topic)
		consumer.consumer.Stop()
	}

	if consumer.dlqProducer != nil {
		log.Printf("Stopping DLQ producer for topic: %s", consumer.dlqTopic)
		consumer.dlqProducer.Stop()
	}
}

// ==================== 状态查询 ====================

// IsConnected 检查是否已连接
func (consumer *NSQConsumer) IsConnected() bool {
	return consumer.consumer.Stats().Connections > 0
}

// IsDLQEnabled 检查是否启用了 DLQ
func (consumer *NSQConsumer) IsDLQEnabled() bool {
	return consumer.isDLQConfigured() && consumer.dlqProducer != nil
}
