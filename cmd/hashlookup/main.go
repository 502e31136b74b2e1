package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashlookup/internal/database"
	"github.com/y0ug/hashlookup/internal/hashlookup"
	"github.com/y0ug/hashlookup/internal/ingest"
	"github.com/y0ug/hashlookup/internal/notifications"
	"github.com/y0ug/hashlookup/internal/webserver"
)

func main() {
	ctx := context.Background()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	inputPathsFlag := flag.String("i", "", "Comma-separated files or directories to ingest")
	manifestFlag := flag.String("l", "", "Manifest of precomputed MD5 digests (.txt, or .csv as filename,md5[,size])")
	jobFlag := flag.String("job", "", "Job identifier recorded on findings (default: derived from the start time)")
	serveFlag := flag.Bool("serve", false, "Serve the lookup and findings API until interrupted")
	progressFlag := flag.Bool("progress", false, "Display a progress indicator while ingesting")
	flag.Parse()

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found. Proceeding with environment variables.")
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	var paths []string
	for _, p := range strings.Split(*inputPathsFlag, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 && *manifestFlag == "" && !*serveFlag {
		logger.Fatal("Nothing to do: provide input paths with -i, a manifest with -l or start the API with -serve.")
	}

	lookupCfg, err := hashlookup.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load hashlookup configuration: %v", err)
	}

	dbConfig, err := database.LoadDatabaseConfig()
	if err != nil {
		logger.Fatalf("Failed to load database configuration: %v", err)
	}
	db, err := database.Open(ctx, dbConfig, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize %s database: %v", dbConfig.Type, err)
	}
	defer db.Close(ctx)
	logger.Infof("%s database initialized successfully", dbConfig.Type)

	var messenger ingest.Messenger
	if notificationCfg := notifications.LoadNotificationConfig(); notificationCfg.Enabled() {
		notifier, err := notifications.NewNotifier(notificationCfg.ShoutrrrURLs, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize notifier: %v", err)
		}
		messenger = notifier
		logger.Info("Notifier initialized successfully")
	} else {
		logger.Info("SHOUTRRR_URLS not set. Job summaries will only be logged.")
	}

	ctxCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen for OS signals to handle graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			logger.Infof("Received signal: %s. Initiating shutdown...", sig)
			cancel()
		case <-ctxCancel.Done():
		}
	}()

	if len(paths) > 0 || *manifestFlag != "" {
		var manifest []ingest.File
		if *manifestFlag != "" {
			manifest, err = ingest.ReadManifest(*manifestFlag, logger)
			if err != nil {
				logger.Fatalf("Failed to read manifest: %v", err)
			}
			logger.WithField("entries", len(manifest)).Info("Manifest loaded")
		}

		jobID := *jobFlag
		if jobID == "" {
			jobID = "job-" + time.Now().UTC().Format("20060102T150405Z")
		}
		if err := runJob(ctxCancel, jobID, paths, manifest, lookupCfg, db, messenger, *progressFlag, logger); err != nil {
			logger.WithError(err).Error("Ingest job did not complete")
		}
	}

	if !*serveFlag {
		return
	}

	webServerConfig, err := webserver.NewWebserverConfig()
	if err != nil {
		logger.Fatalf("Failed to load webserver configuration: %v", err)
	}
	lookup, err := hashlookup.NewLookupFromConfig(lookupCfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize hashlookup: %v", err)
	}
	server, err := webserver.StartWebServer(ctxCancel, webserver.NewWebServer(lookup, db, webServerConfig, logger))
	if err != nil {
		logger.Fatalf("Failed to start web server: %v", err)
	}

	<-ctxCancel.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Failed to gracefully shutdown the server: %v", err)
	}
	logger.Info("Shutdown complete. Exiting.")
}

// runJob classifies every file below paths and every manifest entry with a
// fresh set of run counters.
func runJob(ctx context.Context, jobID string, paths []string, manifest []ingest.File, cfg *hashlookup.Config, db database.Database, messenger ingest.Messenger, progress bool, logger *logrus.Logger) error {
	lookup, err := hashlookup.NewLookupFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ingester := ingest.NewFileIngester(jobID, lookup, db, messenger, logger)
	job := ingest.NewJob(ingester, cfg.MaxConcurrency, logger)
	if progress {
		job.Progress = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Looking up files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
		)
		defer job.Progress.Finish()
	}

	logger.WithFields(logrus.Fields{"job": jobID, "paths": paths}).Info("Starting ingest job")
	if len(paths) > 0 {
		_, err = job.Run(ctx, paths...)
	}
	if err == nil && len(manifest) > 0 {
		_, err = job.RunFiles(ctx, manifest)
	}
	ingester.Shutdown(ctx)
	return err
}
