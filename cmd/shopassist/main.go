// Package main is the shopassist CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/auth"
	"github.com/hyperjump/shopassist/internal/cli"
	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/geoindex"
	"github.com/hyperjump/shopassist/internal/importer"
	"github.com/hyperjump/shopassist/internal/metrics"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/notify"
	"github.com/hyperjump/shopassist/internal/places"
	"github.com/hyperjump/shopassist/internal/recommend"
	"github.com/hyperjump/shopassist/internal/scheduler"
	"github.com/hyperjump/shopassist/internal/server"
	"github.com/hyperjump/shopassist/internal/storage"
	"github.com/hyperjump/shopassist/internal/watcher"
	"github.com/hyperjump/shopassist/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shopassist/config.yaml"

// loadConfig loads config from path. When path is the default and ./config.yaml
// exists, that file is used instead so the server can run from a checkout.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "nearby":
		runNearby()
	case "rebuild":
		runRebuild()
	case "import":
		runImport()
	case "token":
		runToken()
	case "hash-password":
		runHashPassword()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shopassist version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("index", cfg.Index.Backend),
		zap.Bool("degraded_geo", cfg.Places.DegradedGeo),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	dispatcher := notify.NewDispatcher(
		notify.NewLogSender(logger),
		components.Storage,
		cfg.Notifications.MaxDevices,
		cfg.Notifications.MaxRetries,
		notify.WithLogger(logger),
		notify.WithRecorder(metrics.IncNotification),
	)
	generator := recommend.NewGenerator(components.Storage, dispatcher, cfg.Recommendations,
		recommend.WithGeneratorLogger(logger),
		recommend.WithResultRecorder(metrics.IncRecommendationJob),
	)
	queue := recommend.NewQueue(cfg.Recommendations.QueueSize, cfg.Recommendations.Workers, generator.Handle, logger)
	queue.Start(ctx)

	if cfg.Maintenance.RebuildOnStart {
		if err := components.Maintainer.RebuildFromStore(ctx); err != nil {
			logger.Error("initial index rebuild failed", zap.Error(err))
		}
	}

	sched := scheduler.New(logger)
	if cfg.Maintenance.RebuildSchedule != "" {
		if err := sched.Add("rebuild-index", cfg.Maintenance.RebuildSchedule, components.Maintainer.RebuildFromStore); err != nil {
			logger.Fatal("Failed to schedule index rebuild", zap.Error(err))
		}
	}
	sched.Start(ctx)

	var watchSvc *watcher.Watcher
	if len(cfg.Import.Directories) > 0 {
		watchSvc = watcher.New(
			cfg.Import.Directories,
			cfg.Import.Extensions,
			cfg.Import.RecursiveOrDefault(),
			importHandler(components, logger),
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.Sync(ctx)
	}

	srv := server.NewServer(server.Deps{
		Engine:     components.Engine,
		Maintainer: components.Maintainer,
		Index:      components.Index,
		Store:      components.Storage,
		Auth:       components.Auth,
		Jobs:       queue,
		Notifier:   dispatcher,
		Config:     cfg,
		Logger:     logger,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if watchSvc != nil {
		watchSvc.Stop()
	}
	sched.Stop()
	if err := queue.Close(shutdownCtx); err != nil {
		logger.Warn("recommendation queue did not drain", zap.Error(err))
	}
	cancel()
}

// importHandler imports changed sheets and rebuilds the index once per batch.
func importHandler(c *Components, logger *zap.Logger) watcher.Handler {
	return func(ctx context.Context, paths []string) {
		imported := 0
		for _, path := range paths {
			res, err := c.Importer.ImportFile(ctx, path)
			if err != nil {
				logger.Warn("import failed", zap.String("path", path), zap.Error(err))
				continue
			}
			imported += res.Imported()
		}
		if imported == 0 {
			return
		}
		if err := c.Maintainer.RebuildFromStore(ctx); err != nil {
			logger.Error("index rebuild after import failed", zap.Error(err))
		}
	}
}

func runNearby() {
	fs := flag.NewFlagSet("nearby", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = query the index directly)")
	latitude := fs.String("lat", "", "latitude in decimal degrees")
	longitude := fs.String("lon", "", "longitude in decimal degrees")
	distance := fs.String("distance", "", "search radius in km (default from config)")
	count := fs.String("count", "", "maximum number of places (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *latitude == "" || *longitude == "" {
		fmt.Println("Usage: shopassist nearby -lat <latitude> -lon <longitude> [flags]")
		os.Exit(1)
	}
	if _, err := geo.ParsePoint(*latitude, *longitude); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid location: %v\n", err)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var results []*models.PlaceResult
	if *serverURL != "" {
		results, err = nearbyViaHTTP(*serverURL, *latitude, *longitude, *distance, *count)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		ctx := context.Background()
		components, err := initializeComponents(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		req, err := places.ParseNearbyRequest(*latitude, *longitude, *distance, *count, places.LimitsFrom(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid request: %v\n", err)
			os.Exit(1)
		}
		results, err = components.Engine.FindNearby(ctx, req.Origin, req.MaxDistanceMeters(), req.Count)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WritePlaces(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// nearbyQuery builds the query string for the nearby endpoint, omitting empty values.
func nearbyQuery(latitude, longitude, distance, count string) string {
	q := url.Values{}
	q.Set("latitude", latitude)
	q.Set("longitude", longitude)
	if distance != "" {
		q.Set("distanceInKm", distance)
	}
	if count != "" {
		q.Set("count", count)
	}
	return q.Encode()
}

func nearbyViaHTTP(serverURL, latitude, longitude, distance, count string) ([]*models.PlaceResult, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/places/nearby?" + nearbyQuery(latitude, longitude, distance, count))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var results []*models.PlaceResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return results, nil
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Maintainer.RebuildFromStore(ctx); err != nil {
		fmt.Printf("Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	n, _ := components.Index.Count(ctx)
	fmt.Printf("Index rebuilt: %d places\n", n)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	rebuild := fs.Bool("rebuild", true, "rebuild the index after importing")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shopassist import [flags] <file-or-directory>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	results, err := components.Importer.ImportPath(ctx, fs.Arg(0), *recursive)
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteImportResults(os.Stdout, results, format); err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
	if *rebuild {
		if err := components.Maintainer.RebuildFromStore(ctx); err != nil {
			fmt.Printf("Rebuild failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runToken() {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(os.Args[2:])

	if *email == "" || *password == "" {
		fmt.Println("Usage: shopassist token -email <email> -password <password>")
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.SigningKey == "" {
		fmt.Println("auth.signing_key must be set to issue tokens the server accepts")
		os.Exit(1)
	}
	a, err := auth.New(cfg.Auth, nil)
	if err != nil {
		fmt.Printf("Failed to initialize auth: %v\n", err)
		os.Exit(1)
	}
	token, err := a.Login(*email, *password)
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func runHashPassword() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: shopassist hash-password <password>")
		os.Exit(1)
	}
	hash, err := auth.HashPassword(os.Args[2])
	if err != nil {
		fmt.Printf("Hashing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

// statusResponse is the shape of GET /status.
type statusResponse struct {
	Places           int64   `json:"places"`
	Index            string  `json:"index"`
	DegradedGeo      bool    `json:"degraded_geo"`
	IndexedDocuments *uint64 `json:"indexed_documents,omitempty"`
	DiskUsageBytes   *int64  `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Printf("places:             %d\n", status.Places)
	fmt.Printf("index:              %s\n", status.Index)
	fmt.Printf("degraded_geo:       %t\n", status.DegradedGeo)
	if status.IndexedDocuments != nil {
		fmt.Printf("indexed_documents:  %d\n", *status.IndexedDocuments)
	}
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage    storage.Storage
	Index      geoindex.Backend
	Engine     *places.Engine
	Maintainer *places.Maintainer
	Auth       *auth.Authenticator
	Importer   *importer.Importer
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	index, err := geoindex.New(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize place index: %w", err)
	}

	engineCfg, err := places.EngineConfigFrom(cfg)
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, fmt.Errorf("invalid places config: %w", err)
	}
	engine := places.NewEngine(index, engineCfg, places.WithLogger(logger))

	authenticator, err := auth.New(cfg.Auth, logger)
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	return &Components{
		Storage:    store,
		Index:      index,
		Engine:     engine,
		Maintainer: places.NewMaintainer(engine, store),
		Auth:       authenticator,
		Importer:   importer.New(store, logger),
	}, nil
}

func printUsage() {
	fmt.Println(`shopassist - Shopping assistant backend with nearby place search

Usage:
  shopassist server [flags]           Start the HTTP server
  shopassist nearby [flags]           Find places near a coordinate
  shopassist rebuild [flags]          Rebuild the place index from storage
  shopassist import [flags] <path>    Import places from .csv, .tsv, or .xlsx sheets
  shopassist token [flags]            Issue an API token for an account
  shopassist hash-password <pass>     Print a bcrypt hash for auth.users
  shopassist status [flags]           Show server status
  shopassist version                  Show version
  shopassist help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shopassist/config.yaml)
  --debug            Enable debug logging

Nearby Flags:
  --lat, --lon       Origin coordinates (required)
  --distance float   Search radius in km (default from config)
  --count int        Maximum number of places (default from config)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to query the index directly.
  --output string    Output format: text or json (default: text)

Import Flags:
  --recursive        Descend into subdirectories (default: true)
  --rebuild          Rebuild the index after importing (default: true)

Examples:
  shopassist server
  shopassist nearby -lat 37.3861 -lon -122.0839 -distance 10
  shopassist import ./stores.xlsx
  shopassist token -email admin@example.com -password secret
  shopassist status --output json`)
}
