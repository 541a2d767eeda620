package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))

	if cfg.Web.Port != 1816 {
		t.Fatalf("default web port = %d", cfg.Web.Port)
	}
	if cfg.Database.Type != "postgres" {
		t.Fatalf("default database type = %s", cfg.Database.Type)
	}
	if cfg.Messaging.CompanyID == "" {
		t.Fatal("default company id must not be empty")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "wappconsole.yml")
	data := `
system:
  appid: WappConsole
  workdir: /tmp/wappconsole
web:
  host: 127.0.0.1
  port: 2816
  secret: test-secret
messaging:
  company_id: acme
  delivery_url: http://gateway.local/api/send
`
	if err := os.WriteFile(cfile, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(cfile)
	if cfg.Web.Port != 2816 {
		t.Fatalf("web port = %d, want 2816", cfg.Web.Port)
	}
	if cfg.Messaging.CompanyID != "acme" {
		t.Fatalf("company id = %s, want acme", cfg.Messaging.CompanyID)
	}
	if cfg.Messaging.DeliveryURL != "http://gateway.local/api/send" {
		t.Fatalf("delivery url = %s", cfg.Messaging.DeliveryURL)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WAPP_COMPANY_ID", "env-company")
	t.Setenv("WAPP_DB_HOST", "db.internal")

	cfg := LoadConfig("")
	if cfg.Messaging.CompanyID != "env-company" {
		t.Fatalf("company id = %s, want env override", cfg.Messaging.CompanyID)
	}
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("db host = %s, want env override", cfg.Database.Host)
	}
}
