package main

import (
	"fmt"
	"log"

	"publish-gateway/internal/archiver"
	"publish-gateway/internal/config"
	"publish-gateway/internal/database"
	"publish-gateway/internal/eventbus"
	"publish-gateway/internal/idempotency"
	"publish-gateway/internal/platforms"
	"publish-gateway/internal/platforms/instagram"
	"publish-gateway/internal/platforms/reddit"
	"publish-gateway/internal/platforms/tiktok"
	"publish-gateway/internal/publish"
	"publish-gateway/internal/queue"
	"publish-gateway/internal/recorder"
	"publish-gateway/internal/status"

	redis "github.com/redis/go-redis/v9"
)

// AppContext 应用运行时上下文
// 聚合所有运行期依赖,统一管理生命周期
type AppContext struct {
	Config          config.Config
	RedisClient     *redis.Client
	MySQL           *database.MySQLDB
	ArchiveManager  *archiver.Manager
	RecordStore     publish.Store // 给 Orchestrator 使用
	RecordStoreImpl interface{}   // 给 HTTP Handler 使用,存储实际实现
	Ledger          publish.Ledger
	StatusStore     status.StatusStore
	Registry        publish.Registry
	Orchestrator    *publish.Orchestrator
	Service         publish.Service
	Enqueuer        publish.Enqueuer
	EventProducer   *queue.NSQProducer
}

// Close 释放应用上下文持有的所有资源
// 按照依赖关系倒序释放,避免资源泄漏
func (context *AppContext) Close() {
	context.closeArchiveManager()
	context.closeMySQLConnection()
	context.closeQueueProducers()
}

// closeArchiveManager 关闭异步落库管理器
func (context *AppContext) closeArchiveManager() {
	if context.ArchiveManager != nil {
		context.ArchiveManager.Stop()
	}
}

// closeMySQLConnection 关闭 MySQL 连接
func (context *AppContext) closeMySQLConnection() {
	if context.MySQL != nil {
		context.MySQL.Close()
	}
}

// closeQueueProducers 关闭所有队列生产者
func (context *AppContext) closeQueueProducers() {
	if context.Enqueuer != nil {
		context.Enqueuer.Close()
	}

	if context.EventProducer != nil {
		context.EventProducer.Close()
	}
}

//
// 应用初始化器
//

// ApplicationInitializer 应用初始化器
// 负责构建完整的应用运行上下文
type ApplicationInitializer struct {
	configuration  config.Config
	redisClient    *redis.Client
	mysqlDatabase  *database.MySQLDB
	archiveManager *archiver.Manager
}

// NewApplicationInitializer 创建应用初始化器实例
func NewApplicationInitializer(configuration config.Config) *ApplicationInitializer {
	return &ApplicationInitializer{
		configuration: configuration,
	}
}

// Initialize 初始化应用上下文
// 按照依赖关系依次初始化各个组件
func (initializer *ApplicationInitializer) Initialize() *AppContext {
	initializer.initializeRedis()
	initializer.initializeMySQLAndArchive()

	recordStore := initializer.createRecordStore()
	ledger := initializer.createLedger()
	statusStore := initializer.createStatusStore()
	registry := initializer.createPublisherRegistry()

	eventProducer := initializer.createEventProducer()
	bus := initializer.createEventBus(eventProducer)
	enqueuer := initializer.createEnqueuer()

	orchestrator := initializer.createOrchestrator(registry, ledger, bus, recordStore, statusStore)
	service := publish.NewService(orchestrator, enqueuer)

	return &AppContext{
		Config:          initializer.configuration,
		RedisClient:     initializer.redisClient,
		MySQL:           initializer.mysqlDatabase,
		ArchiveManager:  initializer.archiveManager,
		RecordStore:     recordStore,
		RecordStoreImpl: recordStore,
		Ledger:          ledger,
		StatusStore:     statusStore,
		Registry:        registry,
		Orchestrator:    orchestrator,
		Service:         service,
		Enqueuer:        enqueuer,
		EventProducer:   eventProducer,
	}
}

// initializeRedis 初始化 Redis 客户端
func (initializer *ApplicationInitializer) initializeRedis() {
	initializer.redisClient = redis.NewClient(&redis.Options{
		Addr: initializer.configuration.Storage.RedisAddr,
	})

	log.Println("[Initializer] Redis 客户端初始化完成")
}

// initializeMySQLAndArchive 初始化 MySQL 和异步落库管理器
// 仅在配置了 DSN 时才初始化
func (initializer *ApplicationInitializer) initializeMySQLAndArchive() {
	dsn := initializer.configuration.Storage.MySQL.DSN
	if dsn == "" {
		log.Println("[Initializer] 未配置 MySQL,跳过初始化")
		return
	}

	if err := initializer.connectMySQL(); err != nil {
		log.Printf("[Initializer] MySQL 连接失败: %v", err)
		return
	}

	if err := initializer.initializeArchiveManager(); err != nil {
		log.Printf("[Initializer] 异步落库管理器启动失败: %v", err)
		initializer.archiveManager = nil
	}
}

// connectMySQL 连接 MySQL 数据库
func (initializer *ApplicationInitializer) connectMySQL() error {
	mysqlDatabase, err := database.NewMySQLDB(initializer.configuration.Storage.MySQL)
	if err != nil {
		return fmt.Errorf("创建连接失败: %w", err)
	}

	if err := mysqlDatabase.InitTables(); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}

	initializer.mysqlDatabase = mysqlDatabase
	log.Println("[Initializer] MySQL 连接成功")
	return nil
}

// initializeArchiveManager 初始化异步落库管理器
func (initializer *ApplicationInitializer) initializeArchiveManager() error {
	manager := archiver.NewManager(
		initializer.mysqlDatabase,
		initializer.configuration.Storage.Archive,
	)

	if err := manager.Start(); err != nil {
		return fmt.Errorf("启动管理器失败: %w", err)
	}

	initializer.archiveManager = manager
	log.Println("[Initializer] 异步落库管理器启动成功")
	return nil
}

// isHybridModeEnabled 判断是否启用混合存储模式
// 混合模式需要同时具备 MySQL 和落库管理器
func (initializer *ApplicationInitializer) isHybridModeEnabled() bool {
	return initializer.mysqlDatabase != nil && initializer.archiveManager != nil
}

// createRecordStore 创建发布记录存储
func (initializer *ApplicationInitializer) createRecordStore() publish.Store {
	redisRecorder := recorder.NewRedisStore(
		initializer.redisClient,
		initializer.configuration.Storage.Namespace,
		initializer.configuration.Storage.MaxKeep,
		initializer.configuration.Storage.RecordTTL,
	)

	if !initializer.isHybridModeEnabled() {
		log.Println("[Initializer] 发布记录使用 Redis 存储")
		return redisRecorder
	}

	log.Println("[Initializer] 发布记录使用混合存储")
	return recorder.NewHybridStore(redisRecorder, initializer.mysqlDatabase, initializer.archiveManager)
}

// createLedger 创建幂等账本
func (initializer *ApplicationInitializer) createLedger() publish.Ledger {
	redisLedger := idempotency.NewRedisLedger(
		initializer.redisClient,
		initializer.configuration.Storage.Namespace,
		initializer.configuration.App.IdempotencyTTL,
	)

	if !initializer.isHybridModeEnabled() {
		log.Println("[Initializer] 幂等账本使用 Redis")
		return redisLedger
	}

	log.Println("[Initializer] 幂等账本使用混合模式")
	return idempotency.NewHybridLedger(
		redisLedger,
		initializer.mysqlDatabase,
		initializer.archiveManager,
		initializer.configuration.App.IdempotencyTTL,
	)
}

// createStatusStore 创建状态存储
func (initializer *ApplicationInitializer) createStatusStore() status.StatusStore {
	redisStatus := status.NewRedisStatusStore(
		initializer.redisClient,
		initializer.configuration.Storage.StatusTTL,
	)

	if !initializer.isHybridModeEnabled() {
		log.Println("[Initializer] 状态存储使用 Redis")
		return redisStatus
	}

	log.Println("[Initializer] 状态存储使用混合模式")
	return status.NewHybridStatusStore(
		redisStatus,
		initializer.mysqlDatabase,
		initializer.archiveManager,
	)
}

// createPublisherRegistry 创建平台发布器注册表
// 按配置逐个注册,每个平台可独立启停并附加限流
func (initializer *ApplicationInitializer) createPublisherRegistry() publish.Registry {
	registry := publish.NewRegistry()
	platformsConfig := initializer.configuration.Platforms

	if platformsConfig.Instagram.Enabled {
		registry.Register(throttled(instagram.New(nil), platformsConfig.Instagram.RateLimit))
		log.Println("[Initializer] Instagram 发布器已注册")
	}

	if platformsConfig.TikTok.Enabled {
		registry.Register(throttled(tiktok.New(nil), platformsConfig.TikTok.RateLimit))
		log.Println("[Initializer] TikTok 发布器已注册")
	}

	if platformsConfig.Reddit.Enabled {
		redditPublisher := reddit.New(platformsConfig.Reddit.DefaultSubreddit, nil)
		registry.Register(throttled(redditPublisher, platformsConfig.Reddit.RateLimit))
		log.Println("[Initializer] Reddit 发布器已注册")
	}

	return registry
}

// throttled 按配置为发布器附加限流器
func throttled(publisher publish.Publisher, rateLimit config.RateLimit) publish.Publisher {
	return platforms.Throttle(publisher, rateLimit.RequestsPerSecond, rateLimit.Burst)
}

// createEventProducer 创建事件总线的 NSQ 生产者
// 未配置生产者地址时返回 nil,事件退化为日志输出
func (initializer *ApplicationInitializer) createEventProducer() *queue.NSQProducer {
	address := initializer.configuration.NSQ.ProducerAddr
	if address == "" {
		return nil
	}

	producer, err := queue.NewNSQProducer(address, initializer.configuration.Events.Topic)
	if err != nil {
		log.Printf("[Initializer] 创建事件生产者失败: %v", err)
		return nil
	}

	log.Println("[Initializer] 事件生产者创建成功")
	return producer
}

// createEventBus 创建终态事件总线
func (initializer *ApplicationInitializer) createEventBus(producer *queue.NSQProducer) publish.Bus {
	if producer == nil {
		log.Println("[Initializer] NSQ 未配置,事件总线降级为日志输出")
		return eventbus.NewLogBus()
	}

	bus, err := eventbus.NewNSQBus(producer, initializer.configuration.Events.Topic)
	if err != nil {
		log.Printf("[Initializer] 创建事件总线失败: %v", err)
		return eventbus.NewLogBus()
	}

	log.Println("[Initializer] 使用 NSQ 事件总线")
	return bus
}

// createEnqueuer 创建内容就绪队列生产者
// 未配置时返回 nil,Service 自动退化为同步编排
func (initializer *ApplicationInitializer) createEnqueuer() publish.Enqueuer {
	address := initializer.configuration.NSQ.ProducerAddr
	topic := initializer.configuration.NSQ.Topic

	if address == "" || topic == "" {
		log.Println("[Initializer] 未配置入队生产者,提交请求将同步编排")
		return nil
	}

	producer, err := queue.NewNSQProducer(address, topic)
	if err != nil {
		log.Printf("[Initializer] 创建入队生产者失败: %v", err)
		return nil
	}

	log.Println("[Initializer] 入队生产者创建成功")
	return producer
}

// createOrchestrator 创建发布编排器
func (initializer *ApplicationInitializer) createOrchestrator(
	registry publish.Registry,
	ledger publish.Ledger,
	bus publish.Bus,
	recordStore publish.Store,
	statusStore status.StatusStore,
) *publish.Orchestrator {
	orchestrator := publish.NewOrchestrator(
		registry,
		ledger,
		bus,
		initializer.configuration.Storage.Namespace,
	)

	orchestrator.SetStore(recordStore)
	orchestrator.SetStatusStore(statusStore)

	platformsConfig := initializer.configuration.Platforms
	orchestrator.SetRetryPolicy(publish.PlatformInstagram, toRetryPolicy(platformsConfig.Instagram.Retry))
	orchestrator.SetRetryPolicy(publish.PlatformTikTok, toRetryPolicy(platformsConfig.TikTok.Retry))
	orchestrator.SetRetryPolicy(publish.PlatformReddit, toRetryPolicy(platformsConfig.Reddit.Retry))

	log.Println("[Initializer] 发布编排器创建完成")
	return orchestrator
}

// toRetryPolicy 转换配置中的重试参数
func toRetryPolicy(retry config.Retry) publish.RetryPolicy {
	return publish.RetryPolicy{
		MaxAttempts: retry.MaxAttempts,
		BaseBackoff: retry.BaseBackoff,
		MaxBackoff:  retry.MaxBackoff,
	}
}

//
// 外部调用接口
//

// InitAppContext 初始化应用上下文
func InitAppContext(configuration config.Config) *AppContext {
	initializer := NewApplicationInitializer(configuration)
	return initializer.Initialize()
}
