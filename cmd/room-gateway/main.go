package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Aaditya4007/AI-interviewer/internal/config"
	"github.com/Aaditya4007/AI-interviewer/internal/dispatch"
	"github.com/Aaditya4007/AI-interviewer/internal/httpapi"
	"github.com/Aaditya4007/AI-interviewer/internal/media"
	"github.com/Aaditya4007/AI-interviewer/internal/provision"
	"github.com/Aaditya4007/AI-interviewer/internal/recording"
	"github.com/Aaditya4007/AI-interviewer/internal/records"
	"github.com/Aaditya4007/AI-interviewer/internal/subscribers"
	logging "github.com/Aaditya4007/AI-interviewer/internal/subscribers/logging"
	"github.com/Aaditya4007/AI-interviewer/internal/subscribers/webhook"
	"github.com/Aaditya4007/AI-interviewer/internal/tokens"
)

func main() {
	logger := log.New(os.Stdout, "room-gateway ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)
	if err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	fs := pflag.NewFlagSet("room-gateway", pflag.ContinueOnError)
	config.BindFlags(fs, &cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logger.Fatalf("parse flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	signer, err := tokens.NewSigner(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	if err != nil {
		logger.Fatalf("failed to initialize token signer: %v", err)
	}
	issuer := tokens.NewIssuer(signer, cfg.AgentIdentity, cfg.TokenTTL)
	provider, err := media.NewLiveKitClient(cfg.LiveKitURL, signer)
	if err != nil {
		logger.Fatalf("failed to initialize media client: %v", err)
	}

	store := recordStoreOrNone(cfg.Records, logger)
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Printf("store close error: %v", err)
			}
		}()
	}

	recorder := recording.New(recording.Config{
		CredentialsJSON: cfg.Recording.CredentialsJSON,
		Bucket:          cfg.Recording.Bucket,
		Layout:          cfg.Recording.Layout,
		Preset:          cfg.Recording.Preset,
		FileType:        cfg.Recording.FileType,
		Timeout:         cfg.Recording.Timeout,
	}, provider, logger)

	subs := []subscribers.Subscriber{logging.New(logger)}
	for idx, webhookURL := range cfg.WebhookURLs {
		name := webhookSubscriberName(idx, webhookURL)
		subs = append(subs, webhook.New(name, webhookURL, logger, webhook.WithSigningSecret(cfg.WebhookSecret)))
	}
	dispatcher := dispatch.New(logger, subs)

	engine, err := provision.NewEngine(provision.Options{
		Provider:  provider,
		Store:     store,
		Recorder:  recorder,
		Publisher: dispatcher,
		Logger:    logger,
		RoomConfig: media.RoomConfig{
			IdleTimeout:     cfg.RoomIdleTimeout,
			MaxParticipants: cfg.RoomMaxParticipants,
		},
	})
	if err != nil {
		logger.Fatalf("failed to initialize provisioning engine: %v", err)
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
		Logger:            logger,
		Provisioner:       engine,
		Tokens:            issuer,
		Rooms:             provider,
		AllowedOrigin:     cfg.FrontendURL,
		RoomsPollInterval: cfg.RoomsPollInterval,
	})

	go func() {
		logger.Printf("listening on %s records=%s records_enabled=%t recording_enabled=%t", cfg.HTTPAddr, cfg.Records.Driver, store != nil, recorder.Enabled())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}
	if err := dispatcher.Wait(ctx); err != nil {
		logger.Printf("event delivery did not drain: %v", err)
	}
}

// recordStoreOrNone returns nil when the record store cannot be opened. The gateway
// still serves rooms and tokens; provisioning reports the record step as skipped.
func recordStoreOrNone(cfg config.RecordsConfig, logger *log.Logger) records.Store {
	store, err := openRecordStore(cfg, logger)
	if err != nil {
		logger.Printf("record store unavailable driver=%s err=%v; session records disabled", cfg.Driver, err)
		return nil
	}
	return store
}

func openRecordStore(cfg config.RecordsConfig, logger *log.Logger) (records.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case config.RecordsDriverAirtable:
		store, err := records.NewAirtableStore(records.AirtableConfig{
			Token:         cfg.Airtable.Token,
			BaseID:        cfg.Airtable.BaseID,
			SubjectsTable: cfg.Airtable.SubjectsTable,
			SessionsTable: cfg.Airtable.SessionsTable,
			BaseURL:       cfg.Airtable.URL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.RecordsDriverSQLite, config.RecordsDriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" && driver == config.RecordsDriverSQLite {
			dsn = config.DefaultSQLiteDSN
		}
		store, err := records.NewGormStore(driver, dsn, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.RecordsDriverMemory:
		logger.Printf("records driver memory: session records are lost on restart")
		return records.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported records driver %q", cfg.Driver)
	}
}

func webhookSubscriberName(index int, webhookURL string) string {
	parsed, err := url.Parse(webhookURL)
	if err == nil {
		host := strings.TrimSpace(parsed.Host)
		if host != "" {
			return host
		}
	}
	return fmt.Sprintf("webhook-%d", index+1)
}
