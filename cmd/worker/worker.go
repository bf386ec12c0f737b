package main

import (
	"context"
	"log"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/config"
	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/queue"
	"llm-chatbot/internal/telemetry"
	"llm-chatbot/internal/vectorindex"
	"llm-chatbot/services"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if !cfg.RAGEnabled {
		log.Fatal("Worker requires RAG_ENABLED=true")
	}
	if cfg.RedisURL == "" {
		log.Fatal("Worker requires REDIS_URL")
	}
	if !cfg.AsyncIngestionEnabled() {
		log.Fatal("Worker cannot share the in-process memory vector index with the API, set VECTOR_INDEX_PROVIDER")
	}

	ctx := context.Background()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	embedder, err := ai.NewEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}

	var mongoClient *mongo.Client
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

	ingester := services.NewIngestionService(services.NewPDFExtractor(), embedder, index, metrics)

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Error("Task failed", "type", task.Type(), "retry", retried, "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingester)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting ingestion worker",
		"concurrency", cfg.WorkerConcurrency,
		"vector_index", cfg.VectorIndexProvider,
		"redis", redisOpt.Addr,
	)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
