package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINERS", "alice=addr-a,bob=addr-b")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}

	if cfg.ServiceName != "braidd" {
		t.Errorf("ServiceName = %q, want braidd", cfg.ServiceName)
	}
	if cfg.Network != "mainnet" {
		t.Errorf("Network = %q, want mainnet", cfg.Network)
	}
	if cfg.WorkCap != 2500 {
		t.Errorf("WorkCap = %d, want 2500", cfg.WorkCap)
	}
	if cfg.StalenessWindow != 5*time.Minute {
		t.Errorf("StalenessWindow = %v, want 5m", cfg.StalenessWindow)
	}
	if !cfg.CoordinationEnabled {
		t.Error("CoordinationEnabled defaulted to false")
	}
	if cfg.InProcMinerEnabled {
		t.Error("InProcMinerEnabled defaulted to true")
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}

	if len(cfg.Miners) != 2 {
		t.Fatalf("Miners = %v, want 2 entries", cfg.Miners)
	}
	if cfg.Miners[0].Account != "alice" || cfg.Miners[0].PayoutAddress != "addr-a" {
		t.Errorf("Miners[0] = %+v", cfg.Miners[0])
	}

	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params: unexpected error %v", err)
	}
	if params.Simulated() {
		t.Error("mainnet params reported simulated")
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NETWORK", "simnet")
	t.Setenv("WORK_CAP", "100")
	t.Setenv("STALENESS_WINDOW", "90s")
	t.Setenv("INPROC_MINER_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("EVENTS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}

	if cfg.Network != "simnet" {
		t.Errorf("Network = %q, want simnet", cfg.Network)
	}
	if cfg.WorkCap != 100 {
		t.Errorf("WorkCap = %d, want 100", cfg.WorkCap)
	}
	if cfg.StalenessWindow != 90*time.Second {
		t.Errorf("StalenessWindow = %v, want 90s", cfg.StalenessWindow)
	}
	if !cfg.InProcMinerEnabled {
		t.Error("InProcMinerEnabled = false, want true")
	}
	if cfg.EventsEnabled {
		t.Error("EventsEnabled = true, want false")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadRejectsInProcMinerWithoutCoordination(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("COORDINATION_ENABLED", "false")
	t.Setenv("INPROC_MINER_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted the in-process miner with coordination disabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown network", "NETWORK", "betanet"},
		{"non-positive work cap", "WORK_CAP", "0"},
		{"negative staleness", "STALENESS_WINDOW", "-1m"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(test.key, test.value)
			if _, err := Load(); err == nil {
				t.Fatal("Load accepted an invalid value")
			}
		})
	}
}

func TestLoadRejectsBadMiners(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"missing pair", "alice"},
		{"empty payout", "alice="},
		{"duplicate account", "alice=a1,alice=a2"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("MINERS", test.value)
			if _, err := Load(); err == nil {
				t.Fatal("Load accepted a malformed MINERS value")
			}
		})
	}
}

func TestLoadRequiresMiners(t *testing.T) {
	t.Setenv("MINERS", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted an empty miner set")
	}
}

func TestLoadRequiresEngineEndpointsOffSimnet(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NETWORK", "testnet")
	t.Setenv("ENGINE_RPC_URL", "")

	// An explicitly empty value falls back to the default, so clearing the
	// endpoint requires the variable to be unset with a bogus default in
	// place; exercise the validation path directly instead.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}
	cfg.EngineRPCURL = ""
	if err := cfg.validate(); err == nil {
		t.Fatal("validate accepted an empty engine endpoint off simnet")
	}
}
