package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sahilchouksey/studymill/api"
	"github.com/sahilchouksey/studymill/config"
	"github.com/sahilchouksey/studymill/database"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/router"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/services/cron"
	"github.com/sahilchouksey/studymill/services/digitalocean"
	"github.com/sahilchouksey/studymill/utils/auth"
	"github.com/sahilchouksey/studymill/utils/cache"
	"gorm.io/gorm"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return fmt.Errorf("failed to get GORM DB instance")
	}

	// Dedicated postgres session for advisory locks
	pqStore, err := database.Start()
	if err != nil {
		return err
	}

	// Redis live-state mirror. Optional, the pipeline degrades to DB polling.
	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Live job state will fall back to the database.", err)
		redisCache = nil
	}

	// DigitalOcean Spaces for PDF storage
	spaces, err := digitalocean.NewSpacesClient(digitalocean.SpacesConfig{
		Region:    getEnv.DO_SPACES_REGION,
		Bucket:    getEnv.DO_SPACES_BUCKET,
		Endpoint:  getEnv.DO_SPACES_ENDPOINT,
		AccessKey: getEnv.DO_SPACES_ACCESS_KEY,
		SecretKey: getEnv.DO_SPACES_SECRET_KEY,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spaces client: %w", err)
	}

	// Inference client for model-assisted extraction
	inference := digitalocean.NewInferenceClient(digitalocean.InferenceConfig{
		APIKey: getEnv.DO_INFERENCE_API_KEY,
	})

	// Pipeline services
	tracker := services.NewProgressTracker(db, redisCache)
	chunker := services.NewChunker(services.ChunkerConfig{
		TargetTokens:   getEnv.CHUNK_TOKENS,
		OverlapPercent: getEnv.CHUNK_OVERLAP_PCT,
	})
	classifier := services.NewChapterClassifier(inference)
	detector := services.NewBoundaryDetector(inference)

	documentService := services.NewDocumentService(db, spaces, classifier, chunker, tracker)
	structuringService := services.NewStructuringService(db, detector, tracker)
	lessonService := services.NewLessonService(db, inference, tracker)
	tenantService := services.NewTenantService(db, getEnv.PROVIDER_KEY_SECRET)

	// Worker pools
	runner := services.NewJobRunner(db, tracker, services.WorkerConfig{
		UploadWorkers:     getEnv.UPLOAD_WORKERS,
		ExtractionWorkers: getEnv.EXTRACTION_WORKERS,
		LessonWorkers:     getEnv.LESSON_WORKERS,
		EvaluationWorkers: getEnv.EVALUATION_WORKERS,
	})
	runner.Register(model.JobTypeDocumentUpload, documentService.ProcessUpload)
	runner.Register(model.JobTypeChapterExtraction, structuringService.ProcessChapter)
	runner.Register(model.JobTypeLessonGeneration, lessonService.GenerateLesson)
	runner.Register(model.JobTypeEvaluation, lessonService.EvaluateAnswers)
	documentService.SetEnqueuer(runner)

	if err := runner.ResumePending(context.Background()); err != nil {
		log.Printf("Warning: failed to resume pending jobs: %v", err)
	}

	// Stream tokens for SSE consumers
	jwtSecret := getEnv.JWT_SECRET
	if jwtSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	jwtIssuer := getEnv.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "studymill-api"
	}
	streamTokens := auth.NewStreamTokenManager(jwtSecret, 15*time.Minute, jwtIssuer)

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		cronManager = cron.NewCronManager(db, pqStore, tracker, getEnv.STALE_JOB_SWEEP_MIN)
		if err := cronManager.Start(); err != nil {
			print("Warning: Failed to start cron jobs\n")
			print("Error: ", err.Error(), "\n")
			// Don't fail the app, just log the warning
		}
	}

	// Defer closing DB connections and stopping background work
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		runner.Shutdown(30 * time.Second)
		pqStore.Close()
		store.Close()
	}()

	// Init API
	var server *api.APIServer = api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Attach Middleware
	// Custom Logger
	app.Use(logger.New())

	app.Use(recover.New())

	// Setup Routes
	router.SetupRoutes(app, router.Dependencies{
		Store:           store,
		DB:              db,
		Spaces:          spaces,
		Tracker:         tracker,
		Runner:          runner,
		DocumentService: documentService,
		TenantService:   tenantService,
		StreamTokens:    streamTokens,
		BootstrapKey:    getEnv.BOOTSTRAP_KEY,
	})

	// Shut the server down cleanly on SIGINT/SIGTERM so in-flight jobs finish
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("Shutdown signal received")
		server.Shutdown()
	}()

	// Get the PORT & Start the Server
	return server.Run()

}
