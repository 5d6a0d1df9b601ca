package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goodtune/gamehall/internal/config"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  api_port: 8081
  apiport: 9000
billing:
  duo_rate: 7000
consle:
  theme: dark
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys: %v", err)
	}
	if len(unknown) != 2 || unknown[0] != "consle.theme" || unknown[1] != "server.apiport" {
		t.Fatalf("unknown = %v", unknown)
	}
}

func TestDumpConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Billing.DuoRate = 7000
	cfg.Auth.AdminSecret = "s3cret"

	var buf bytes.Buffer
	dumpConfig(&buf, cfg, config.Defaults())
	out := buf.String()

	for _, want := range []string{
		"[server]",
		"[storage.redis]",
		"    pool_size = 10",
		"  duo_rate = 7000  (modified from default: 6000)",
		"  quad_rate = 8000\n",
		"  admin_secret = ***REDACTED***",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "s3cret") {
		t.Fatalf("dump leaked a secret")
	}
}
