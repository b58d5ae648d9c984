// Package main 是查询服务进程的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ask-docs-go/internal/config"
	"ask-docs-go/internal/handler"
	"ask-docs-go/internal/middleware"
	"ask-docs-go/internal/repository"
	"ask-docs-go/internal/service"
	"ask-docs-go/internal/vectorstore"
	"ask-docs-go/pkg/database"
	"ask-docs-go/pkg/embedding"
	"ask-docs-go/pkg/kafka"
	"ask-docs-go/pkg/limiter"
	"ask-docs-go/pkg/llm"
	"ask-docs-go/pkg/log"
	"ask-docs-go/pkg/storage"
	"ask-docs-go/pkg/token"
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
	log.Info("日志记录器初始化成功")

	// 2. 初始化外部存储客户端
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	objectStore, err := storage.NewObjectStore(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}
	store, err := vectorstore.New(cfg.Index.Dir, cfg.Index.Dimension)
	if err != nil {
		log.Fatal("向量索引初始化失败", err)
	}

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 3. 初始化 Repository 与外部模型客户端
	docRepo := repository.NewDocumentRepository(db)
	cacheRepo := repository.NewAnswerCacheRepository(rdb)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours)

	// 4. 限流器：外层 general 闸门 + 生成调用前的 generation 闸门
	generalLimiter := limiter.NewFixedWindow(rdb, "general", cfg.RateLimit.General.Limit, cfg.RateLimit.General.Window())
	generationLimiter := limiter.NewFixedWindow(rdb, "generation", cfg.RateLimit.Generation.Limit, cfg.RateLimit.Generation.Window())

	// 5. 初始化 Service (依赖注入)
	documentService := service.NewDocumentService(docRepo, objectStore, producer, cfg.Kafka.Topics.DocumentUploaded)
	queryService := service.NewQueryService(cacheRepo, generationLimiter, embeddingClient, store, llmClient, cfg.Cache.TTL(), cfg.Index.TopK)

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	apiV1 := r.Group("/api/v1")
	protected := apiV1.Group("/")
	protected.Use(middleware.AuthMiddleware(jwtManager), middleware.RateLimit(generalLimiter))
	{
		documents := protected.Group("/documents")
		{
			docHandler := handler.NewDocumentHandler(documentService)
			documents.POST("", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.GET("/:docId", docHandler.Status)
		}

		query := protected.Group("/query")
		{
			queryHandler := handler.NewQueryHandler(queryService)
			query.POST("", queryHandler.Ask)
			query.GET("/stream", queryHandler.Stream)
		}
	}

	// 7. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
