package config

import (
	"testing"

	"github.com/symbioticfi/points-indexer/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Driver.SnapshotInterval != 200 {
		t.Fatalf("expected default snapshot interval 200, got %d", cfg.Driver.SnapshotInterval)
	}
	if cfg.API.ListenAddr == "" {
		t.Fatal("expected a default API listen address")
	}
}

// TestLoadFromSandboxFile covers a config file overriding the package
// defaults, using an isolated temp directory so the test never touches the
// working directory's own config.
func TestLoadFromSandboxFile(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	data := []byte("chain:\n  selector: holesky\nstore:\n  dsn: postgres://sandbox\ndriver:\n  snapshot_interval: 50\n")
	if err := sb.WriteFile("indexer.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(sb.Path("indexer.yaml"), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chain.Selector != ChainHolesky {
		t.Fatalf("expected holesky selector, got %q", cfg.Chain.Selector)
	}
	if cfg.Store.DSN != "postgres://sandbox" {
		t.Fatalf("expected sandbox DSN, got %q", cfg.Store.DSN)
	}
	if cfg.Driver.SnapshotInterval != 50 {
		t.Fatalf("expected overridden snapshot interval 50, got %d", cfg.Driver.SnapshotInterval)
	}
}

func TestLoadRejectsInvalidChainSelector(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := sb.WriteFile("bad.yaml", []byte("chain:\n  selector: moonbase\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(sb.Path("bad.yaml"), ""); err == nil {
		t.Fatal("expected an error for an invalid chain selector")
	}
}
