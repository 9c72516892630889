package config

import (
	"os"
	"path/filepath"
	"testing"

	"stakevault/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if cfg.Token.Symbol != "SVT" {
		t.Fatalf("unexpected token symbol %q", cfg.Token.Symbol)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.JournalPath != filepath.Join(cfg.DataDir, "events.db") {
		t.Fatalf("unexpected journal path %q", cfg.JournalPath)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := os.Stat(cfg.CustodianKeystorePath); err != nil {
		t.Fatalf("keystore not written: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(cfg.CustodianKeystorePath, ""); err != nil {
		t.Fatalf("keystore unreadable: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.CustodianKeystorePath != cfg.CustodianKeystorePath {
		t.Fatalf("keystore path changed on reload: %q vs %q", reloaded.CustodianKeystorePath, cfg.CustodianKeystorePath)
	}
}

func TestVaultPolicyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
RPCAddress = ":9090"
DataDir = "` + filepath.ToSlash(dir) + `/data"

[vault]
MinStakeGapSeconds = 0
MaxRewardPerDay = 5000
RBACEnabled = false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	policy := cfg.VaultPolicy()
	if policy.MinStakeGapSeconds != 0 {
		t.Fatalf("explicit zero should disable the stake gap, got %d", policy.MinStakeGapSeconds)
	}
	if policy.MaxRewardPerDay != 5000 {
		t.Fatalf("unexpected payout cap %d", policy.MaxRewardPerDay)
	}
	if policy.RBACEnabled {
		t.Fatalf("rbac should be disabled")
	}
	if policy.MinClaimGapSeconds == 0 {
		t.Fatalf("untouched knobs should keep their defaults")
	}
}

func TestCollectionParsing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := key.PubKey().Address().String()

	body := `
[collection]
ID = "0xc0ffee0000000000000000000000000000000000000000000000000000000001"

[[collection.Items]]
ID = "0x0000000000000000000000000000000000000000000000000000000000000abc"
Owner = "` + owner + `"
Verified = true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	id, err := cfg.CollectionID()
	if err != nil {
		t.Fatalf("collection id: %v", err)
	}
	if id[0] != 0xc0 || id[31] != 0x01 {
		t.Fatalf("unexpected collection id %x", id)
	}

	specs, err := cfg.SeedItemSpecs()
	if err != nil {
		t.Fatalf("seed items: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 item, got %d", len(specs))
	}
	if specs[0].ID[31] != 0xbc || !specs[0].Verified {
		t.Fatalf("unexpected item spec %+v", specs[0])
	}
}

func TestCollectionParsingRejectsBadInput(t *testing.T) {
	cfg := &Config{Collection: CollectionConfig{ID: "not-hex"}}
	if _, err := cfg.CollectionID(); err == nil {
		t.Fatalf("expected error for invalid collection id")
	}

	cfg = &Config{Collection: CollectionConfig{Items: []SeedItemConfig{{
		ID:    "0xabcd",
		Owner: "svt1whatever",
	}}}}
	if _, err := cfg.SeedItemSpecs(); err == nil {
		t.Fatalf("expected error for short item id")
	}
}

func TestEmptyCollectionID(t *testing.T) {
	cfg := &Config{}
	id, err := cfg.CollectionID()
	if err != nil {
		t.Fatalf("empty id should parse: %v", err)
	}
	if id != [32]byte{} {
		t.Fatalf("expected zero id, got %x", id)
	}
}
