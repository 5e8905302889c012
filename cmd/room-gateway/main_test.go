package main

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Aaditya4007/AI-interviewer/internal/config"
	"github.com/Aaditya4007/AI-interviewer/internal/media/mediatest"
	"github.com/Aaditya4007/AI-interviewer/internal/provision"
)

func TestRecordStoreOrNoneDegradesWhenStoreCannotOpen(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	store := recordStoreOrNone(config.RecordsConfig{
		Driver: config.RecordsDriverSQLite,
		DSN:    filepath.Join(blocker, "sessions", "room-gateway.db"),
	}, logger)
	if store != nil {
		t.Fatalf("expected no store when open fails, got %T", store)
	}
	if !strings.Contains(logs.String(), "record store unavailable") {
		t.Fatalf("expected open failure to be logged, got %q", logs.String())
	}

	engine, err := provision.NewEngine(provision.Options{
		Provider: mediatest.New(),
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	out, err := engine.ProvisionSession(context.Background(), "cand1_123", "admin-interviewer")
	if err != nil {
		t.Fatalf("provisioning must work without a record store: %v", err)
	}
	if out.Session.SID == "" || out.Record.State != provision.RecordSkipped {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRecordStoreOrNoneOpensSQLite(t *testing.T) {
	store := recordStoreOrNone(config.RecordsConfig{
		Driver: config.RecordsDriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "room-gateway.db"),
	}, log.New(&bytes.Buffer{}, "", 0))
	if store == nil {
		t.Fatalf("expected sqlite store")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWebhookSubscriberName(t *testing.T) {
	if got := webhookSubscriberName(0, "https://hooks.example.com/transcripts"); got != "hooks.example.com" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := webhookSubscriberName(1, "::bad"); got != "webhook-2" {
		t.Fatalf("unexpected fallback name %q", got)
	}
}
