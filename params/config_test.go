package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "BOOK_DEPTH_LEVELS=25\nAPI_ADDR=:9000\nBOOK_INSTRUMENTS=btc-usd, eth-usd\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// real environment wins over the file
	t.Setenv("API_ADDR", ":7000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AUTH_CHAIN_ID", "31337")

	cfg, err := LoadFromEnv(envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// godotenv.Load does not override, so clean up what it set
	t.Cleanup(func() {
		os.Unsetenv("BOOK_DEPTH_LEVELS")
		os.Unsetenv("BOOK_INSTRUMENTS")
	})

	if cfg.API.Addr != ":7000" {
		t.Errorf("addr = %s, want :7000", cfg.API.Addr)
	}
	if cfg.Book.DepthLevels != 25 {
		t.Errorf("depth = %d, want 25", cfg.Book.DepthLevels)
	}
	if cfg.Book.HistoryMaxPage != 100 {
		t.Errorf("history page = %d, want default 100", cfg.Book.HistoryMaxPage)
	}
	if len(cfg.Book.Instruments) != 2 || cfg.Book.Instruments[0] != "BTC-USD" || cfg.Book.Instruments[1] != "ETH-USD" {
		t.Errorf("instruments = %v", cfg.Book.Instruments)
	}
	if len(cfg.Sinks.KafkaBrokers) != 2 || cfg.Sinks.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Sinks.KafkaBrokers)
	}
	if cfg.Auth.ChainID.Int64() != 31337 {
		t.Errorf("chain id = %s", cfg.Auth.ChainID)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"BOOK_DEPTH_LEVELS", "many"},
		{"BOOK_DEPTH_LEVELS", "0"},
		{"HISTORY_MAX_PAGE", "-1"},
		{"AUTH_CHAIN_ID", "0x"},
		{"TXGEN_MODE", "hyperliquid"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			t.Setenv("ENABLE_TXGEN", "true")
			if _, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
