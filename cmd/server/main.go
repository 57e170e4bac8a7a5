package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/owlnotes/meeting-pipeline/internal/analysis"
	"github.com/owlnotes/meeting-pipeline/internal/cleanup"
	"github.com/owlnotes/meeting-pipeline/internal/config"
	"github.com/owlnotes/meeting-pipeline/internal/handlers"
	"github.com/owlnotes/meeting-pipeline/internal/jobs"
	"github.com/owlnotes/meeting-pipeline/internal/media"
	"github.com/owlnotes/meeting-pipeline/internal/meetings"
	"github.com/owlnotes/meeting-pipeline/internal/notify"
	"github.com/owlnotes/meeting-pipeline/internal/storage"
	"github.com/owlnotes/meeting-pipeline/internal/transcription"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.ScratchDir, 0755); err != nil {
		log.Fatalf("Failed to create scratch directory: %v", err)
	}

	logBuffer := &LogBuffer{lines: make([]string, 0, 1000)}
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	log.Println("Initializing components...")

	// Blob store
	var blobs storage.BlobStore
	switch cfg.Storage.Backend {
	case "supabase":
		blobs = storage.NewSupabaseStore(
			cfg.Storage.Supabase.URL,
			cfg.Storage.Supabase.Bucket,
			cfg.Storage.Supabase.ServiceKey,
		)
		log.Println("Using Supabase blob store")
	default:
		local, err := storage.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			log.Fatalf("Failed to initialize local store: %v", err)
		}
		blobs = local
		log.Printf("Using local blob store at %s", cfg.Storage.LocalDir)
	}

	// Database
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	db, err := jobs.OpenDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	jobStore, err := jobs.NewStore(db,
		time.Duration(cfg.Poller.ClaimTTLMinutes)*time.Minute,
		cfg.Poller.MaxAttempts,
	)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	meetingStore, err := meetings.NewStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize meeting store: %v", err)
	}

	// Pipeline stages
	assembler := media.NewAssembler(blobs, media.ExecRunner{}, cfg.Storage.ScratchDir)

	var transcriberOpts []transcription.Option
	var analyzerOpts []analysis.Option
	if cfg.OpenAI.BaseURL != "" {
		transcriberOpts = append(transcriberOpts, transcription.WithBaseURL(cfg.OpenAI.BaseURL))
		analyzerOpts = append(analyzerOpts, analysis.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if len(cfg.Prompts) > 0 {
		analyzerOpts = append(analyzerOpts, analysis.WithPrompts(cfg.Prompts))
	}
	transcriber := transcription.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.TranscribeModel, transcriberOpts...)
	analyzer := analysis.NewAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, analyzerOpts...)

	pollerOpts := []jobs.PollerOption{
		jobs.WithMeetingSink(meetingStore),
	}
	if cfg.Poller.StageTimeoutMinutes > 0 {
		pollerOpts = append(pollerOpts,
			jobs.WithStageTimeout(time.Duration(cfg.Poller.StageTimeoutMinutes)*time.Minute))
	}
	if cfg.SMTP.Host != "" {
		mailer := notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		pollerOpts = append(pollerOpts, jobs.WithNotifier(mailer))
		log.Println("Email notifications enabled")
	} else {
		log.Println("SMTP not configured - result emails disabled")
	}

	// Google Drive archive (optional - may fail if credentials not set up)
	if cfg.GoogleDrive.CredentialsFile != "" {
		if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
			archiver, err := storage.NewDriveArchiver(
				cfg.GoogleDrive.CredentialsFile,
				cfg.GoogleDrive.TokenFile,
				cfg.GoogleDrive.FolderName,
			)
			if err != nil {
				log.Printf("WARNING: Google Drive not available: %v", err)
			} else {
				pollerOpts = append(pollerOpts, jobs.WithArchiver(archiver))
				log.Println("Google Drive archiving enabled")
			}
		} else {
			log.Println("Google Drive credentials not found - archiving disabled")
		}
	}

	poller := jobs.NewPoller(jobStore, assembler, transcriber, analyzer, pollerOpts...)

	// Resident poll loop (optional; POST /jobs/poll always works)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Poller.IntervalSeconds > 0 {
		go poller.Run(ctx, time.Duration(cfg.Poller.IntervalSeconds)*time.Second)
	}

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.ScratchDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	chunkHandler := handlers.NewChunkHandler(blobs, cfg.Limits.MaxFileSizeMB)
	finalizeHandler := handlers.NewFinalizeHandler(blobs, jobStore)
	processHandler := handlers.NewProcessHandler(blobs, jobStore, cfg.Limits.MaxFileSizeMB)
	jobsHandler := handlers.NewJobsHandler(jobStore, poller)
	meetingsHandler := handlers.NewMeetingsHandler(meetingStore)
	streamHandler := handlers.NewStreamHandler(blobs, jobStore)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "version": "1.0.0"})
	})

	app.Post("/upload-chunk", chunkHandler.Handle)
	app.Post("/finalize-upload", finalizeHandler.Handle)
	app.Post("/process-recording", processHandler.Handle)
	app.Post("/meetings/start", meetingsHandler.Start)
	app.Get("/meetings/:id", meetingsHandler.Get)
	app.Get("/jobs", jobsHandler.List)
	app.Get("/jobs/:id", jobsHandler.Get)
	app.Post("/jobs/poll", jobsHandler.Poll)

	app.Get("/ws/stream", websocket.New(streamHandler.Handle))

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"logs": logBuffer.GetLogs()})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /upload-chunk     - Upload one recording chunk")
	log.Println("   POST /finalize-upload  - Enqueue processing for a session")
	log.Println("   POST /process-recording - Mix and process labeled session tracks")
	log.Println("   POST /meetings/start   - Register a meeting")
	log.Println("   GET  /ws/stream        - WebSocket chunk streaming")
	log.Println("   GET  /jobs             - List jobs")
	log.Println("   GET  /jobs/:id         - Inspect a job")
	log.Println("   POST /jobs/poll        - Process one pending job")
	log.Println("   GET  /logs             - View server logs")
	log.Println("   GET  /health           - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		cancel()
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures recent log lines in memory for the /logs endpoint.
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}
	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
