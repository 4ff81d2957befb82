package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"FolioLedger/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	if cfg.PersistChanSize != 1024 {
		t.Errorf("persist_chan_size: got %d, want 1024", cfg.PersistChanSize)
	}
	if cfg.PersistFlushTimeout != 10*time.Millisecond {
		t.Errorf("persist_flush_timeout: got %v, want 10ms", cfg.PersistFlushTimeout)
	}
	if cfg.EngineID != "folio-engine" {
		t.Errorf("engine_id: got %s, want folio-engine", cfg.EngineID)
	}
	if cfg.Fund.FeeNumerator != "20000000000000000" {
		t.Errorf("fee_numerator: got %s", cfg.Fund.FeeNumerator)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
nats_url: nats://broker:4222
http_addr: ":9000"
persist_batch_size: 100
fund:
  fee_numerator: "30000000000000000"
  auction_length: 900
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.NATSURL != "nats://broker:4222" {
		t.Errorf("nats_url: got %s", cfg.NATSURL)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("http_addr: got %s", cfg.HTTPAddr)
	}
	if cfg.PersistBatchSize != 100 {
		t.Errorf("persist_batch_size: got %d, want 100", cfg.PersistBatchSize)
	}
	if cfg.Fund.FeeNumerator != "30000000000000000" {
		t.Errorf("fund.fee_numerator: got %s", cfg.Fund.FeeNumerator)
	}
	if cfg.Fund.AuctionLength != 900 {
		t.Errorf("fund.auction_length: got %d, want 900", cfg.Fund.AuctionLength)
	}
	// Fields absent from the file keep defaults.
	if cfg.PostgresURL == "" {
		t.Error("postgres_url: default lost")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("nats_url: nats://file:4222\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FOLIO_NATS_URL", "nats://env:4222")
	t.Setenv("FOLIO_SNAPSHOT_INTERVAL", "5000")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.NATSURL != "nats://env:4222" {
		t.Errorf("env should win over file: got %s", cfg.NATSURL)
	}
	if cfg.SnapshotInterval != 5000 {
		t.Errorf("snapshot_interval: got %d, want 5000", cfg.SnapshotInterval)
	}
}

func TestMissingFileFallsBack(t *testing.T) {
	cfg, err := config.Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.EngineID != "folio-engine" {
		t.Errorf("engine_id: got %s", cfg.EngineID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("FOLIO_DAO_RECEIVER", "not-a-uuid")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for invalid dao_receiver")
	}
}

func TestValidateRejectsBadFeeString(t *testing.T) {
	t.Setenv("FOLIO_FEE_NUMERATOR", "2%")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for non-integer fee numerator")
	}
}

func TestValidateRejectsFeesOverCap(t *testing.T) {
	// 60% DAO share, above the 50% cap.
	t.Setenv("FOLIO_DAO_SHARE", "600000000000000000")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for dao share over cap")
	}
}

func TestValidateRejectsTVLFeeOverCap(t *testing.T) {
	// 11%/yr, above the 10% cap.
	t.Setenv("FOLIO_FEE_NUMERATOR", "110000000000000000")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for tvl fee over cap")
	}
}
