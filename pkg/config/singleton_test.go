package config

import (
	"os"
	"testing"
)

func TestInitializeAndReload(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	path := writeConfig(t, "database:\n  driver: none\narchive:\n  prefix: first_\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := MustGetConfig().Archive.Prefix; got != "first_" {
		t.Errorf("prefix = %q", got)
	}

	if err := os.WriteFile(path, []byte("database:\n  driver: none\narchive:\n  prefix: second_\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ReloadConfig()
	if err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if cfg.Archive.Prefix != "second_" || GetConfig().Archive.Prefix != "second_" {
		t.Errorf("reload not applied: %q", GetConfig().Archive.Prefix)
	}

	if err := os.WriteFile(path, []byte("retention:\n  latest: -4\ndatabase:\n  driver: none\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReloadConfig(); err == nil {
		t.Fatal("ReloadConfig() accepted invalid config")
	}
	if GetConfig().Archive.Prefix != "second_" {
		t.Error("failed reload replaced the configuration")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig() did not panic")
		}
	}()
	MustGetConfig()
}

func TestSetConfig(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	cfg := Default()
	SetConfig(cfg)
	if GetConfig() != cfg {
		t.Error("SetConfig() not applied")
	}
}
