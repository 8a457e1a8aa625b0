package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tour/internal/api"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a config with MQTT, InfluxDB and staging disabled.
func writeConfig(t *testing.T, dbPath string, port int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`
site:
  id: test-site

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: discard

api:
  host: "127.0.0.1"
  port: %d

viewer:
  preload_assets: false
  max_sessions: 10

security:
  jwt:
    secret: %q
`, dbPath, port, testSecret)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("TOURENGINE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingJWTSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "site:\n  id: test-site\ndatabase:\n  path: " + filepath.Join(t.TempDir(), "t.db") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOURENGINE_CONFIG", path)
	t.Setenv("TOURENGINE_JWT_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a JWT secret")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("TOURENGINE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("TOURENGINE_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := &config.Config{
		Site: config.SiteConfig{ID: "site-9"},
		Viewer: config.ViewerConfig{
			DragSensitivity:       0.4,
			WheelSensitivity:      0.002,
			AutoRotateRate:        5,
			AutoRotate:            true,
			TickInterval:          40,
			SessionTTL:            15,
			MaxSessions:           20,
			DefaultPixelsPerMeter: 80,
		},
	}

	got := sessionConfig(cfg)
	if got.Orientation.DragSensitivity != 0.4 || !got.Orientation.AutoRotate || got.Orientation.AutoRotateRate != 5 {
		t.Errorf("orientation = %+v", got.Orientation)
	}
	if got.TickInterval != 40*time.Millisecond || got.TTL != 15*time.Minute {
		t.Errorf("tick = %v, ttl = %v", got.TickInterval, got.TTL)
	}
	if got.MaxSessions != 20 || got.PixelsPerMeter != 80 || got.SiteID != "site-9" {
		t.Errorf("config = %+v", got)
	}
}

func TestCatalogueNotifier_BroadcastsWithoutBus(t *testing.T) {
	hub := api.NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
	n := &catalogueNotifier{hub: hub}

	if err := n.PublishTourChanged("tour-1", "updated"); err != nil {
		t.Errorf("PublishTourChanged() error = %v", err)
	}
}

func TestRun_StartupAndShutdown(t *testing.T) {
	port := freePort(t)
	t.Setenv("TOURENGINE_CONFIG", writeConfig(t, filepath.Join(t.TempDir(), "tour.db"), port))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
