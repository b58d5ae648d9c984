// Package main 是文档处理 Worker 进程的入口点。
// Worker 订阅两个主题：document_uploaded 驱动文档处理流水线，
// document_processed 驱动查询缓存失效。
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"ask-docs-go/internal/config"
	"ask-docs-go/internal/consumer"
	"ask-docs-go/internal/pipeline"
	"ask-docs-go/internal/repository"
	"ask-docs-go/internal/vectorstore"
	"ask-docs-go/pkg/database"
	"ask-docs-go/pkg/embedding"
	"ask-docs-go/pkg/kafka"
	"ask-docs-go/pkg/log"
	"ask-docs-go/pkg/storage"
	"ask-docs-go/pkg/tika"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置与日志
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("[Worker] 日志记录器初始化成功")

	// 2. 初始化外部存储客户端
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("[Worker] MySQL 初始化失败", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("[Worker] Redis 初始化失败", err)
	}
	objectStore, err := storage.NewObjectStore(cfg.MinIO)
	if err != nil {
		log.Fatal("[Worker] MinIO 初始化失败", err)
	}
	store, err := vectorstore.New(cfg.Index.Dir, cfg.Index.Dimension)
	if err != nil {
		log.Fatal("[Worker] 向量索引初始化失败", err)
	}

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 3. 组装文档处理流水线
	docRepo := repository.NewDocumentRepository(db)
	cacheRepo := repository.NewAnswerCacheRepository(rdb)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)

	processor := pipeline.NewProcessor(
		objectStore,
		tikaClient,
		embeddingClient,
		store,
		docRepo,
		producer,
		cfg.Kafka.Topics.DocumentProcessed,
	)

	// 4. 注册消费者并启动分发器。两个消费组彼此独立：
	// 同一条 document_processed 事件不会抢占文档处理组的进度。
	dispatcher := kafka.NewDispatcher(cfg.Kafka)
	dispatcher.Register(cfg.Kafka.Topics.DocumentUploaded, consumer.GroupDocumentProcessor,
		consumer.NewDocumentUploadedHandler(processor))
	dispatcher.Register(cfg.Kafka.Topics.DocumentProcessed, consumer.GroupCacheInvalidator,
		consumer.NewDocumentProcessedHandler(cacheRepo))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("[Worker] 消费者分发器启动")
	dispatcher.Start(ctx)
	log.Info("[Worker] 已优雅关闭")
}
