package app

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"histflow/config"
	"histflow/logger"
)

func TestNewLogsStartupEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "run.log")
	cfg := config.Default()
	cfg.Logging.Output = path

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer logger.GetLogger().SetOutput(os.Stdout)
	if a.Runner == nil || len(a.Runner.Exchanges()) != 2 {
		t.Fatalf("runner not wired: %+v", a.Runner)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		if line["message"] != "starting histflow" {
			continue
		}
		if line["APP_ENV"] != "staging" || line["environment"] != "staging" {
			t.Fatalf("environment fields missing: %v", line)
		}
		return
	}
	t.Fatalf("no startup line in %s", path)
}
