package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/config"
	"llm-chatbot/internal/conversation"
	"llm-chatbot/internal/database"
	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/queue"
	"llm-chatbot/internal/telemetry"
	"llm-chatbot/internal/vectorindex"
	"llm-chatbot/routes"
	"llm-chatbot/services"
	"llm-chatbot/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint, version)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func(context.Context) {}
	}
	defer func() {
		sctx, cancel := utils.WithTimeout(context.Background())
		defer cancel()
		shutdownTracer(sctx)
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// The service still starts without a model and answers in degraded mode.
	loadCtx, cancelLoad := utils.WithOptionalTimeout(ctx, cfg.ModelLoadTimeout)
	model, err := ai.LoadModel(loadCtx, ai.LoadOptions{
		Name:           cfg.ModelName,
		Token:          cfg.HFToken,
		CacheDir:       cfg.ModelCacheDir,
		HubURL:         cfg.HubURL,
		InferenceURL:   cfg.InferenceURL,
		Device:         cfg.ModelDevice,
		ReturnFullText: cfg.GenerationReturnFullText,
		Timeout:        cfg.GenerationTimeout,
		MaxConcurrency: cfg.GenerationMaxConcurrency,
		RPS:            cfg.GenerationRPS,
		Metrics:        metrics,
	})
	cancelLoad()
	if err != nil {
		logger.Error("Failed to load model, serving degraded", "model", cfg.ModelName, "error", err)
		model = nil
	}

	// Conversation archive
	var sink conversation.Sink
	var archive *conversation.Archive
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.OpenPostgres(cfg.DatabaseURL, cfg.GinMode != "release")
		if err != nil {
			logger.Warn("Conversation archive disabled", "error", err)
		} else {
			archive, err = conversation.NewArchive(db, metrics)
			if err != nil {
				logger.Warn("Conversation archive disabled", "error", err)
				archive = nil
			} else {
				sink = archive
			}
		}
	}
	if db != nil {
		defer database.Close(db)
	}
	convLog := conversation.NewLog(sink)

	// Retrieval pipeline
	var retriever services.Retriever
	var ingester services.Ingester
	var mongoClient *mongo.Client
	if cfg.RAGEnabled {
		embedder, err := ai.NewEmbedder(ctx, cfg)
		if err != nil {
			log.Fatal("Failed to initialize embedder:", err)
		}

		if cfg.VectorIndexProvider == config.VectorProviderMongo {
			mongoClient, err = config.ConnectMongoDB(cfg)
			if err != nil {
				log.Fatal("Failed to connect to MongoDB:", err)
			}
			defer config.DisconnectMongoDB(mongoClient)
		}

		index, err := vectorindex.New(cfg, mongoClient, metrics)
		if err != nil {
			log.Fatal("Failed to initialize vector index:", err)
		}

		ingester = services.NewIngestionService(services.NewPDFExtractor(), embedder, index, metrics)
		retriever = services.NewRetrievalService(embedder, index)
	}

	// Redis backs the rate limiter and the ingestion queue
	var rdb *redis.Client
	var queueClient *queue.Client
	if cfg.RedisURL != "" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, rate limiting and async ingestion disabled", "error", err)
		} else {
			defer rdb.Close()
		}
	}
	if rdb != nil && cfg.AsyncIngestionEnabled() {
		opt, err := config.AsynqRedisOpt(cfg)
		if err != nil {
			logger.Warn("Async ingestion disabled", "error", err)
		} else {
			queueClient = queue.NewClient(opt)
			defer queueClient.Close()
		}
	} else if cfg.RAGEnabled && rdb != nil {
		logger.Warn("Async ingestion disabled for the in-process vector index", "provider", cfg.VectorIndexProvider)
	}

	chat := services.NewChatService(model, retriever, convLog, cfg.RetrievalTopK)
	if archive != nil {
		chat.UseArchive(archive, services.DefaultArchiveHistoryLimit)
	}

	cron := services.NewCronService()
	if err := cron.ScheduleSessionJanitor(convLog, cfg.SessionIdleTTL, cfg.SessionSweepInterval); err != nil {
		logger.Warn("Session janitor not scheduled", "error", err)
	}
	cron.Start()
	defer cron.Stop()

	router := routes.NewRouter(cfg, metrics, rdb)
	routes.SetupHealthRoutes(router, cfg, chat, model)
	routes.SetupChatRoutes(router, chat)
	if cfg.RAGEnabled {
		routes.SetupDocumentRoutes(router, cfg, ingester, queueClient)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "mode", cfg.Mode(), "model_loaded", chat.ModelLoaded())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	sctx, cancel := utils.WithShutdownTimeout(context.Background())
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
