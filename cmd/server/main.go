package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/safeupload/internal/classify"
	"github.com/maneesh/safeupload/internal/config"
	"github.com/maneesh/safeupload/internal/handlers"
	"github.com/maneesh/safeupload/internal/moderation"
	"github.com/maneesh/safeupload/internal/storage"
	"github.com/maneesh/safeupload/internal/tracing"
	"github.com/maneesh/safeupload/internal/video"
)

func main() {
	log.Println("Starting SafeUpload service...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Service: %s, Port: %s, Store: %s", cfg.ServiceName, cfg.ServicePort, cfg.StoreBackend)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint, cfg.TracingEnabled)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Load the censor wordlist once; it is read-only from here on
	wordlist, err := classify.LoadWordlist(cfg.WordlistFile)
	if err != nil {
		log.Fatalf("Failed to load wordlist: %v", err)
	}
	log.Printf("Wordlist loaded: %d terms", wordlist.Len())

	// Initialize Vision client
	log.Println("Connecting to Cloud Vision...")
	analyzer, err := classify.NewVisionAnalyzer(context.Background(), cfg.VisionCredentialsFile)
	if err != nil {
		log.Fatalf("Failed to initialize Vision client: %v", err)
	}
	defer analyzer.Close()

	policy := classify.FailOpen
	if !cfg.VisionFailOpen {
		policy = classify.FailClosed
	}
	log.Printf("Image analyzer failure policy: default verdict %q", policy.Default.Label())

	// Initialize upload store
	var store storage.UploadStore
	staticDir := ""
	switch cfg.StoreBackend {
	case "minio":
		log.Println("Connecting to MinIO...")
		minioClient, err := storage.NewMinioClient(
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO client: %v", err)
		}
		store = minioClient
		log.Println("MinIO client initialized")
	default:
		localStore, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			log.Fatalf("Failed to initialize upload dir: %v", err)
		}
		store = localStore
		staticDir = localStore.Dir()
		log.Printf("Upload dir: %s", localStore.Dir())
	}

	sampler := video.NewSampler(
		video.NewFFmpegDecoder(cfg.FFmpegPath, cfg.FFprobePath),
		cfg.VideoMaxFrames,
		"",
	)

	pipeline := moderation.NewPipeline(
		store,
		classify.NewTextClassifier(wordlist),
		classify.NewImageClassifier(analyzer, policy, cfg.VisionTimeout),
		sampler,
	)

	// Initialize Redis verdict cache
	if cfg.CacheEnabled {
		log.Println("Connecting to Redis...")
		redisClient, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("Failed to initialize Redis client: %v", err)
		}
		defer redisClient.Close()
		pipeline.WithCache(redisClient)
		log.Println("Redis client initialized")
	}

	routes := handlers.Routes{
		Assess:    handlers.NewAssessHandler(pipeline, cfg.GetMaxUploadBytes(), ""),
		List:      handlers.NewListHandler(store),
		StaticDir: staticDir,
	}

	// Initialize TiDB audit log
	if cfg.AuditEnabled {
		log.Println("Connecting to TiDB...")
		tidbClient, err := storage.NewTiDBClient(cfg.GetDSN())
		if err != nil {
			log.Fatalf("Failed to initialize TiDB client: %v", err)
		}
		defer tidbClient.Close()
		pipeline.WithAudit(tidbClient)
		routes.Audit = handlers.NewAuditHandler(tidbClient)
		log.Println("TiDB client initialized")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      handlers.NewRouter(routes),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
