package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_ADVISOR_CONFIG", "/nonexistent/path/advisor.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidStoreBackend verifies validation errors stop startup.
func TestRun_InvalidStoreBackend(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "advisor.yaml")
	content := `
site:
  id: test-site
  timezone: Europe/Berlin
store:
  backend: etcd
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_ADVISOR_CONFIG", configPath)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail with unknown store backend")
	}
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("error = %v, want store.backend validation", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_ADVISOR_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("GRAYLOGIC_ADVISOR_CONFIG", "/etc/graylogic/advisor.yaml")
	if got := getConfigPath(); got != "/etc/graylogic/advisor.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "advisor.db"), WALMode: true, BusyTimeout: 5},
		Store:    config.StoreConfig{Backend: config.StoreBackendSQLite},
	}

	st, closeStore, err := openStore(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	roundTrip(t, st)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Store: config.StoreConfig{
			Backend: config.StoreBackendRedis,
			Redis:   config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"},
		},
	}

	st, closeStore, err := openStore(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	roundTrip(t, st)
	if !mr.Exists("test:" + store.KeyScheduleState) {
		t.Error("expected prefixed key in redis")
	}
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	cfg := &config.Config{
		Store: config.StoreConfig{
			Backend: config.StoreBackendRedis,
			Redis:   config.RedisConfig{Addr: "127.0.0.1:1"},
		},
	}
	if _, _, err := openStore(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("expected connection error")
	}
}

func roundTrip(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	in := map[string]string{"lastSentDateStamp": "2024-05-01"}
	if err := st.Save(ctx, store.KeyScheduleState, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out map[string]string
	ok, err := st.Load(ctx, store.KeyScheduleState, &out)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if out["lastSentDateStamp"] != "2024-05-01" {
		t.Errorf("loaded %v", out)
	}
}
