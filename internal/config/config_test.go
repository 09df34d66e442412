package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = Mode("unknown")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}

func TestValidateRejectsUndersizedRoster(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PMRoster = []PMModel{{ModelID: "solo", AccountId: "acct-solo"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a roster below the minimum size")
	}
}

func TestValidateRejectsDuplicateAccountAcrossRoster(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PMRoster = []PMModel{
		{ModelID: "pm-a", AccountId: "acct-shared"},
		{ModelID: "pm-b", AccountId: "acct-shared"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when two PMs share an account_id")
	}
}

func TestValidateRejectsChairmanAccountCollision(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChairmanAccount = cfg.PMRoster[0].AccountId
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when the chairman account collides with a PM account")
	}
}

func TestValidateRejectsEmptyUniverse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradableUniverse = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an empty tradable universe")
	}
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for max_concurrency below 1")
	}
}

func TestInUniverse(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.InUniverse("SPY") {
		t.Fatal("expected SPY to be in the default universe")
	}
	if cfg.InUniverse("NOT-LISTED") {
		t.Fatal("did not expect an unlisted instrument to be in the universe")
	}
}

func TestAccountFor(t *testing.T) {
	cfg := DefaultConfig()
	acct, ok := cfg.AccountFor(cfg.PMRoster[0].ModelID)
	if !ok || acct != cfg.PMRoster[0].AccountId {
		t.Fatalf("expected AccountFor to resolve %s, got %s (ok=%v)", cfg.PMRoster[0].ModelID, acct, ok)
	}
	if _, ok := cfg.AccountFor("no-such-model"); ok {
		t.Fatal("expected AccountFor to fail for an unknown model id")
	}
}

func TestLoadWithoutConfigFileReturnsValidatedDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeFull {
		t.Fatalf("expected default mode %q, got %q", ModeFull, cfg.Mode)
	}
}
