package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stakevault/crypto"
	"stakevault/native/vault"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress            string `toml:"RPCAddress"`
	DataDir               string `toml:"DataDir"`
	JournalPath           string `toml:"JournalPath"`
	CustodianKeystorePath string `toml:"CustodianKeystorePath"`

	Log        LogConfig        `toml:"log"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Token      TokenConfig      `toml:"token"`
	Collection CollectionConfig `toml:"collection"`
	Vault      PolicyConfig     `toml:"vault"`
}

type LogConfig struct {
	Level      string `toml:"Level"`
	Format     string `toml:"Format"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type TelemetryConfig struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	ServiceName string `toml:"ServiceName"`
	Insecure    bool   `toml:"Insecure"`
}

type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// CollectionConfig names the accepted collection and an optional fixture
// inventory registered at startup.
type CollectionConfig struct {
	ID    string           `toml:"ID"`
	Items []SeedItemConfig `toml:"Items"`
}

type SeedItemConfig struct {
	ID       string `toml:"ID"`
	Owner    string `toml:"Owner"`
	Verified bool   `toml:"Verified"`
}

// PolicyConfig overrides individual vault policy knobs. Pointer fields
// distinguish "not set" (default applies) from an explicit zero, which
// disables the corresponding guard.
type PolicyConfig struct {
	MinStakeGapSeconds     *int64  `toml:"MinStakeGapSeconds"`
	MinClaimGapSeconds     *int64  `toml:"MinClaimGapSeconds"`
	MaxElapsedSeconds      *int64  `toml:"MaxElapsedSeconds"`
	FailureThreshold       *uint32 `toml:"FailureThreshold"`
	BreakerCooldownSeconds *int64  `toml:"BreakerCooldownSeconds"`
	MaxStakesPerDay        *uint32 `toml:"MaxStakesPerDay"`
	MaxClaimsPerDay        *uint32 `toml:"MaxClaimsPerDay"`
	MaxRewardPerDay        *uint64 `toml:"MaxRewardPerDay"`
	RBACEnabled            *bool   `toml:"RBACEnabled"`
}

// Load loads the configuration from the given path, creating a default file
// (and custodian keystore) on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stakevault-data"
	}
	if strings.TrimSpace(cfg.JournalPath) == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "events.db")
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "json"
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "stakevaultd"
	}
	if strings.TrimSpace(cfg.Token.Symbol) == "" {
		cfg.Token.Symbol = "SVT"
	}
	if strings.TrimSpace(cfg.Token.Name) == "" {
		cfg.Token.Name = "StakeVault Token"
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.CustodianKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.CustodianKeystorePath != keystorePath {
		cfg.CustodianKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress: ":8080",
		DataDir:    "./stakevault-data",
		Log:        LogConfig{Level: "info", Format: "json"},
		Telemetry:  TelemetryConfig{ServiceName: "stakevaultd"},
		Token:      TokenConfig{Symbol: "SVT", Name: "StakeVault Token", Decimals: 6},
	}
	cfg.CustodianKeystorePath = keystorePath
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "custodian.keystore")
}

// VaultPolicy resolves the effective policy: defaults overridden by any knob
// the file sets explicitly.
func (c *Config) VaultPolicy() vault.Policy {
	p := vault.DefaultPolicy()
	if c.Vault.MinStakeGapSeconds != nil {
		p.MinStakeGapSeconds = *c.Vault.MinStakeGapSeconds
	}
	if c.Vault.MinClaimGapSeconds != nil {
		p.MinClaimGapSeconds = *c.Vault.MinClaimGapSeconds
	}
	if c.Vault.MaxElapsedSeconds != nil {
		p.MaxElapsedSeconds = *c.Vault.MaxElapsedSeconds
	}
	if c.Vault.FailureThreshold != nil {
		p.FailureThreshold = *c.Vault.FailureThreshold
	}
	if c.Vault.BreakerCooldownSeconds != nil {
		p.BreakerCooldownSeconds = *c.Vault.BreakerCooldownSeconds
	}
	if c.Vault.MaxStakesPerDay != nil {
		p.MaxStakesPerDay = *c.Vault.MaxStakesPerDay
	}
	if c.Vault.MaxClaimsPerDay != nil {
		p.MaxClaimsPerDay = *c.Vault.MaxClaimsPerDay
	}
	if c.Vault.MaxRewardPerDay != nil {
		p.MaxRewardPerDay = *c.Vault.MaxRewardPerDay
	}
	if c.Vault.RBACEnabled != nil {
		p.RBACEnabled = *c.Vault.RBACEnabled
	}
	return p
}

// SeedItemSpec is a parsed fixture inventory entry.
type SeedItemSpec struct {
	ID       [32]byte
	Owner    [20]byte
	Verified bool
}

// CollectionID parses the configured collection identifier. An empty setting
// returns the zero ID.
func (c *Config) CollectionID() ([32]byte, error) {
	var id [32]byte
	raw := strings.TrimSpace(c.Collection.ID)
	if raw == "" {
		return id, nil
	}
	return decodeID32(raw)
}

// SeedItemSpecs parses the fixture inventory entries.
func (c *Config) SeedItemSpecs() ([]SeedItemSpec, error) {
	specs := make([]SeedItemSpec, 0, len(c.Collection.Items))
	for i, item := range c.Collection.Items {
		id, err := decodeID32(item.ID)
		if err != nil {
			return nil, fmt.Errorf("collection item %d: %w", i, err)
		}
		addr, err := crypto.DecodeAddress(strings.TrimSpace(item.Owner))
		if err != nil {
			return nil, fmt.Errorf("collection item %d owner: %w", i, err)
		}
		var owner [20]byte
		copy(owner[:], addr.Bytes())
		specs = append(specs, SeedItemSpec{ID: id, Owner: owner, Verified: item.Verified})
	}
	return specs, nil
}

func decodeID32(raw string) ([32]byte, error) {
	var id [32]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return id, fmt.Errorf("decode id: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("id must be %d bytes, got %d", len(id), len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}
