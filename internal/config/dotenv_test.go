package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDotEnv_NotExist(t *testing.T) {
	withHome(t)

	m, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	home := withHome(t)

	appDir := filepath.Join(home, ".tilematch")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "# comment\nA=1\nexport B=two\nC=\"quoted value\"\nD='single'\n=skipped\nnoequals\n"
	if err := os.WriteFile(filepath.Join(appDir, ".env"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if m["A"] != "1" || m["B"] != "two" || m["C"] != "quoted value" || m["D"] != "single" {
		t.Fatalf("unexpected map: %v", m)
	}
	if len(m) != 4 {
		t.Fatalf("expected 4 keys, got %v", m)
	}
}

func TestGetConfigValue_EnvOverridesDotEnv(t *testing.T) {
	home := withHome(t)

	appDir := filepath.Join(home, ".tilematch")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(appDir, ".env"), []byte("K=fromdotenv\nJ=onlydotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("K", "fromenv")

	v, err := GetConfigValue("K")
	if err != nil {
		t.Fatalf("GetConfigValue: %v", err)
	}
	if v != "fromenv" {
		t.Fatalf("expected env override, got %q", v)
	}
	v, err = GetConfigValue("J")
	if err != nil {
		t.Fatalf("GetConfigValue: %v", err)
	}
	if v != "onlydotenv" {
		t.Fatalf("expected dotenv fallback, got %q", v)
	}

	vals, err := GetConfigValues("K", "J", "MISSING")
	if err != nil {
		t.Fatalf("GetConfigValues: %v", err)
	}
	if vals["K"] != "fromenv" || vals["J"] != "onlydotenv" || vals["MISSING"] != "" || len(vals) != 3 {
		t.Fatalf("unexpected values: %v", vals)
	}
}

func TestEnsureDotEnvTemplate_DoesNotOverwrite(t *testing.T) {
	home := withHome(t)

	appDir := filepath.Join(home, ".tilematch")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(appDir, ".env")
	if err := os.WriteFile(p, []byte("TILEMATCH_BUCKET=keep\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDotEnvTemplate(); err != nil {
		t.Fatalf("EnsureDotEnvTemplate: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "TILEMATCH_BUCKET=keep\n" {
		t.Fatalf("template overwrote existing file: %q", string(b))
	}
}

func TestEnsureDotEnvTemplate_CreatesWhenMissing(t *testing.T) {
	home := withHome(t)
	p := filepath.Join(home, ".tilematch", ".env")

	if err := EnsureDotEnvTemplate(); err != nil {
		t.Fatalf("EnsureDotEnvTemplate: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "TILEMATCH_BUCKET=") {
		t.Fatalf("template missing bucket key: %q", string(b))
	}
}
