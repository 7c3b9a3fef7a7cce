package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"publish-gateway/internal/publish"
	"publish-gateway/internal/queue"
)

//
// 常量定义
//

const (
	messageProcessingTimeout = 60 * time.Second
)

//
// 内容就绪队列消费者
//

// ContentReadyConsumerManager 内容就绪队列消费者管理器
// 上游内容生成完成后的发布请求由此进入编排器
type ContentReadyConsumerManager struct {
	appContext   *AppContext
	orchestrator *publish.Orchestrator
	consumer     *queue.NSQConsumer
}

// NewContentReadyConsumerManager 创建消费者管理器实例
func NewContentReadyConsumerManager(appContext *AppContext) *ContentReadyConsumerManager {
	return &ContentReadyConsumerManager{
		appContext:   appContext,
		orchestrator: appContext.Orchestrator,
	}
}

// Start 启动内容就绪队列消费者
func (manager *ContentReadyConsumerManager) Start() {
	if !manager.isConsumerEnabled() {
		log.Println("[ContentReadyConsumer] 消费者未启用,跳过启动")
		return
	}

	consumer, err := manager.createConsumer()
	if err != nil {
		log.Fatalf("[ContentReadyConsumer] 创建消费者失败: %v", err)
	}

	manager.consumer = consumer
	manager.attachDeadLetterQueue()
	manager.runConsumerInBackground()

	log.Println("[ContentReadyConsumer] 内容就绪队列消费者启动成功")
}

// Stop 停止消费者
func (manager *ContentReadyConsumerManager) Stop() {
	if manager.consumer != nil {
		manager.consumer.Stop()
	}
}

// isConsumerEnabled 检查消费者是否启用
func (manager *ContentReadyConsumerManager) isConsumerEnabled() bool {
	return manager.appContext.Config.NSQ.ConsumerEnabled
}

// createConsumer 创建消费者实例
func (manager *ContentReadyConsumerManager) createConsumer() (*queue.NSQConsumer, error) {
	nsqConfig := manager.appContext.Config.NSQ

	return queue.NewNSQConsumerFromConfig(queue.ConsumerConfig{
		Topic:                nsqConfig.Topic,
		Channel:              nsqConfig.Channel,
		MaxInFlight:          nsqConfig.MaxInFlight,
		Concurrency:          nsqConfig.Concurrency,
		NsqdAddresses:        nsqConfig.NsqdTCPAddrs,
		LookupdAddresses:     nsqConfig.LookupdHTTPAddrs,
		DLQTopic:             nsqConfig.DLQTopic,
		MaxAttemptsBeforeDLQ: uint16(nsqConfig.MaxConsumeAttemptsBeforeDLQ),
		MessageHandleTimeout: messageProcessingTimeout,
		Handler:              manager.handlePayload,
	})
}

// handlePayload 处理一条内容就绪消息
// 解析失败返回错误交由 NSQ 重试,多次失败后进入 DLQ
func (manager *ContentReadyConsumerManager) handlePayload(
	ctx context.Context,
	payload []byte,
	attemptCount uint16,
) error {
	request, err := manager.parseRequest(payload, attemptCount)
	if err != nil {
		return err
	}

	log.Printf("[ContentReadyConsumer] 处理发布请求: correlation=%s, 内容数=%d, 平台数=%d (尝试:%d)",
		request.CorrelationID, len(request.Contents), len(request.Platforms), attemptCount)

	return manager.orchestrator.OnContentReady(ctx, *request)
}

// parseRequest 解析发布请求
func (manager *ContentReadyConsumerManager) parseRequest(
	payload []byte,
	attemptCount uint16,
) (*publish.PublishRequest, error) {
	var request publish.PublishRequest

	if err := json.Unmarshal(payload, &request); err != nil {
		log.Printf("[ContentReadyConsumer] 反序列化失败(尝试:%d): %v", attemptCount, err)
		return nil, fmt.Errorf("解析发布请求失败: %w", err)
	}

	return &request, nil
}

// attachDeadLetterQueue 附加死信队列
// 用于兜底多次失败的毒消息
func (manager *ContentReadyConsumerManager) attachDeadLetterQueue() {
	nsqConfig := manager.appContext.Config.NSQ

	if len(nsqConfig.NsqdTCPAddrs) == 0 || nsqConfig.DLQTopic == "" {
		return
	}

	if err := manager.consumer.AttachDLQProducer(nsqConfig.NsqdTCPAddrs[0]); err != nil {
		log.Fatalf("[ContentReadyConsumer] 附加死信队列失败: %v", err)
	}

	log.Printf("[ContentReadyConsumer] 死信队列附加成功: %s", nsqConfig.DLQTopic)
}

// runConsumerInBackground 在后台运行消费者
func (manager *ContentReadyConsumerManager) runConsumerInBackground() {
	go func() {
		if err := manager.consumer.Run(); err != nil {
			log.Fatalf("[ContentReadyConsumer] 消费者运行失败: %v", err)
		}
	}()
}

//
// 外部调用接口
//

// startContentReadyConsumer 启动内容就绪队列消费者
func startContentReadyConsumer(app *AppContext) {
	manager := NewContentReadyConsumerManager(app)
	manager.Start()
}
