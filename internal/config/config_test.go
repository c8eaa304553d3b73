package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

func TestProcessAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"NG_TOKEN":    "123:abc",
		"NG_DOT_PATH": t.TempDir(),
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if cfg.Moderation.FloodLimit != 5 || cfg.Moderation.FloodWindow != 10*time.Second {
		t.Fatalf("unexpected flood defaults: %+v", cfg.Moderation)
	}
	if cfg.Moderation.MaxWarnings != 3 || cfg.Moderation.MuteDuration != time.Hour {
		t.Fatalf("unexpected moderation defaults: %+v", cfg.Moderation)
	}
	if cfg.Moderation.CaptchaTimeout != 5*time.Minute || cfg.Moderation.ReportCooldown != 5*time.Minute {
		t.Fatalf("unexpected timeouts: %+v", cfg.Moderation)
	}
	if !cfg.Banlist.Enabled || !cfg.Banlist.Lookup {
		t.Fatalf("banlist must be on by default: %+v", cfg.Banlist)
	}
}

func TestProcessRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{}},
		{name: "cooldown above an hour", env: map[string]string{"NG_TOKEN": "x", "NG_REPORT_COOLDOWN": "2h"}},
		{name: "zero flood limit", env: map[string]string{"NG_TOKEN": "x", "NG_FLOOD_LIMIT": "0"}},
		{name: "short captcha", env: map[string]string{"NG_TOKEN": "x", "NG_CAPTCHA_TIMEOUT": "5s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Process(context.Background(), envconfig.MapLookuper(tt.env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNbFormatterSortsFields(t *testing.T) {
	t.Parallel()

	entry := log.NewEntry(log.New()).WithFields(log.Fields{"b": 2, "a": "x"})
	entry.Message = "hello"
	entry.Level = log.InfoLevel

	out, err := (&NbFormatter{NoColors: true}).Format(entry)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	line := string(out)
	if !strings.HasPrefix(line, "level=INFO") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	if strings.Index(line, `a="x"`) > strings.Index(line, "b=2") {
		t.Fatalf("fields are not sorted: %q", line)
	}
	if !strings.HasSuffix(line, "msg=\"hello\"\n") {
		t.Fatalf("unexpected suffix: %q", line)
	}
}
