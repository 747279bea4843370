package radiusconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsWithNoPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Client.Retries != 3 || cfg.Client.RetryIntervalMs != 3000 {
		t.Errorf("unexpected client defaults: %+v", cfg.Client)
	}
	if cfg.Server.AuthPort != 1812 || cfg.Server.AcctPort != 1813 || cfg.Server.CoAPort != 3799 {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{
		"client": {"retries": 5},
		"endpoints": [{"name": "nas1", "address": "10.0.0.0/24", "port": 1812, "secret": "s3cr3t"}]
	}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Client.Retries != 5 {
		t.Errorf("got Retries=%d want 5", cfg.Client.Retries)
	}
	if cfg.Client.RetryIntervalMs != 3000 {
		t.Errorf("expected default RetryIntervalMs to still apply, got %d", cfg.Client.RetryIntervalMs)
	}

	ep, found := cfg.FindEndpoint("10.0.0.42")
	if !found || ep.Name != "nas1" {
		t.Fatalf("expected CIDR match for 10.0.0.42, got %+v found=%v", ep, found)
	}
	_, found = cfg.FindEndpoint("192.168.1.1")
	if found {
		t.Errorf("expected no match for an address outside the configured CIDR")
	}
}

func TestFindEndpointExactMatch(t *testing.T) {
	cfg := &Config{Endpoints: []EndpointConfig{{Name: "nas2", Address: "10.0.0.5", Secret: "x"}}}
	ep, found := cfg.FindEndpoint("10.0.0.5")
	if !found || ep.Name != "nas2" {
		t.Fatalf("expected exact match, got %+v found=%v", ep, found)
	}
}
