// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"scribo-go/internal/config"
	"scribo-go/internal/handler"
	"scribo-go/internal/middleware"
	"scribo-go/internal/model"
	"scribo-go/internal/pipeline"
	"scribo-go/internal/repository"
	"scribo-go/internal/service"
	"scribo-go/pkg/database"
	"scribo-go/pkg/es"
	"scribo-go/pkg/kafka"
	"scribo-go/pkg/llm"
	"scribo-go/pkg/log"
	"scribo-go/pkg/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与外部依赖
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("MySQL 初始化失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Submission{}, &model.ScoringResult{}, &model.Module{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("Redis 初始化失败: %v", err)
	}

	questionBank, err := storage.NewQuestionBank(cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}

	esClient, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		log.Fatalf("Elasticsearch 初始化失败: %v", err)
	}

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	sessionRepo := repository.NewSessionRepository(rdb)
	submissionRepo := repository.NewSubmissionRepository(db)
	moduleRepo := repository.NewModuleRepository(db)

	// 5. 初始化 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	interviewService := service.NewInterviewService(llmClient, sessionRepo, cfg.Interview)
	scoringService := service.NewScoringService(llmClient, submissionRepo, producer, cfg.Scoring)
	moduleService := service.NewModuleService(moduleRepo, llmClient)
	searchService := service.NewSearchService(esClient, cfg.Elasticsearch.IndexName)

	// 6. 启动后台 Kafka 消费者，把评分事件索引到 Elasticsearch
	indexer := pipeline.NewIndexer(esClient, cfg.Elasticsearch.IndexName)
	go kafka.StartConsumer(cfg.Kafka, indexer)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.Identity())

	// 8. 注册路由
	interviewHandler := handler.NewInterviewHandler(interviewService)
	scoringHandler := handler.NewScoringHandler(scoringService, searchService)
	moduleHandler := handler.NewModuleHandler(moduleService)
	problemHandler := handler.NewProblemHandler(questionBank)

	apiV1 := r.Group("/api/v1")
	{
		interview := apiV1.Group("/interview")
		{
			interview.GET("/sessions/:exam_id", interviewHandler.GetSession)
			interview.POST("/chat/:exam_id", interviewHandler.Chat)
			interview.GET("/ws/:exam_id", interviewHandler.ChatWS)
			interview.POST("/generate/:exam_id", interviewHandler.GenerateProposal)
		}

		answers := apiV1.Group("/answers")
		{
			answers.POST("", scoringHandler.Submit)
			answers.GET("/:submission_id", scoringHandler.GetSubmission)
		}

		scoring := apiV1.Group("/scoring")
		{
			scoring.POST("", scoringHandler.Score)
			scoring.GET("/search", scoringHandler.Search)
			scoring.GET("/:submission_id", scoringHandler.GetResult)
		}

		modules := apiV1.Group("/modules")
		{
			modules.GET("", moduleHandler.List)
			modules.POST("", moduleHandler.Create)
			modules.POST("/seed", moduleHandler.Seed)
			modules.POST("/rewrite", moduleHandler.Rewrite)
			modules.GET("/:module_id", moduleHandler.Get)
			modules.PUT("/:module_id", moduleHandler.Update)
			modules.DELETE("/:module_id", moduleHandler.Delete)
		}

		exams := apiV1.Group("/exams")
		{
			exams.GET("/prompt", problemHandler.GetPrompt)
		}
	}

	// 9. 启动 HTTP 服务器并实现优雅停机
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
