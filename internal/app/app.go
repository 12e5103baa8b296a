// Package app wires configuration, storage, clients, and services into a
// running Planhound instance. It is the shared core used by cmd/planhound-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/planhound/planhound/internal/clients/gemini"
	"github.com/planhound/planhound/internal/clients/objectstore"
	"github.com/planhound/planhound/internal/clients/ocr"
	"github.com/planhound/planhound/internal/clients/planning"
	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/interfaces"
	"github.com/planhound/planhound/internal/services/classify"
	"github.com/planhound/planhound/internal/services/extract"
	"github.com/planhound/planhound/internal/services/jobmanager"
	"github.com/planhound/planhound/internal/services/matcher"
	"github.com/planhound/planhound/internal/services/notify"
	"github.com/planhound/planhound/internal/services/scanner"
	"github.com/planhound/planhound/internal/storage/surrealdb"
)

// App holds all initialized clients and services.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	ObjectStore interfaces.ObjectStoreClient
	LLMClient   interfaces.LLMClient
	Metadata    interfaces.MetadataClient
	Scanner     interfaces.Scanner
	JobControl  interfaces.JobControl
	JobManager  *jobmanager.Manager
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, PLANHOUND_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("PLANHOUND_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "planhound.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/planhound.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	objectClient, err := objectstore.NewClient(ctx, &config.ObjectStore,
		objectstore.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store client: %w", err)
	}

	if config.Clients.Gemini.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	llmClient, err := gemini.NewClient(ctx, config.Clients.Gemini.APIKey,
		gemini.WithLogger(logger),
		gemini.WithModel(config.Clients.Gemini.Model),
		gemini.WithCheapModel(config.Clients.Gemini.CheapModel),
		gemini.WithTimeout(config.Clients.Gemini.GetTimeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	metadataClient := planning.NewClient(config.Clients.Planning.BaseURL, config.Clients.Planning.APIKey,
		planning.WithLogger(logger),
		planning.WithRateLimit(config.Clients.Planning.RateLimit),
		planning.WithTimeout(config.Clients.Planning.GetTimeout()),
	)

	extractOpts := []extract.ServiceOption{extract.WithLogger(logger)}
	if config.Clients.OCR.BaseURL != "" {
		ocrClient := ocr.NewClient(config.Clients.OCR.BaseURL,
			ocr.WithLogger(logger),
			ocr.WithDPI(config.Clients.OCR.DPI),
			ocr.WithPageTimeout(config.Clients.OCR.GetPageTimeout()),
		)
		extractOpts = append(extractOpts,
			extract.WithOCR(ocrClient, config.Clients.OCR.GetMaxPages(), config.Scan.GetOCRMemoryMarginMB()))
	}
	extractor := extract.NewService(config.Scan.GetMaxTextChars(), config.Scan.GetOCRMinChars(), extractOpts...)

	classifier, err := classify.NewPipeline(llmClient, classify.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	subMatcher := matcher.NewService(storageManager.SubscriberStore(), metadataClient,
		matcher.WithLogger(logger),
	)

	mailer := notify.NewSMTPMailer(&config.SMTP, logger)
	dispatcher := notify.NewDispatcher(mailer, storageManager.SubscriberStore(), storageManager.DeliveryStore(),
		notify.WithLogger(logger),
	)

	scanService := scanner.NewService(
		objectClient,
		extractor,
		classifier,
		subMatcher,
		dispatcher,
		storageManager.ScanJobStore(),
		storageManager.MatchStore(),
		storageManager.RunItemStore(),
		&config.Scan,
		config.SMTP.AdminAddr,
		scanner.WithLogger(logger),
	)

	manager := jobmanager.NewManager(scanService, storageManager, logger, &config.Scan)
	jobControl := jobmanager.NewJobControl(storageManager, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		ObjectStore: objectClient,
		LLMClient:   llmClient,
		Metadata:    metadataClient,
		Scanner:     scanService,
		JobControl:  jobControl,
		JobManager:  manager,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Start launches the job manager (processor pool and scheduler).
func (a *App) Start() {
	a.JobManager.Start()
}

// Close releases all resources. Shutdown order: stop the job manager so
// in-flight runs checkpoint cleanly, then close storage.
func (a *App) Close() {
	if a.JobManager != nil {
		a.JobManager.Stop()
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
