package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/config"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

func TestRun(t *testing.T) {
	convey.Convey("Given a sqlite-backed configuration and a free port", t, func() {
		cfg := config.New()
		cfg.StoreBackend = config.BackendSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "elorank.db")
		cfg.LogLevel = "error"
		cfg.WorkerCount = 2
		cfg.ExportDir = filepath.Join(t.TempDir(), "exports")
		cfg.MetricsRefreshMS = 40
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		base := "http://" + ln.Addr().String()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, ln) }()

		client := &http.Client{Timeout: 2 * time.Second}
		waitHealthy(client, base)

		convey.Convey("When a collection is registered and matched over HTTP", func() {
			req, err := http.NewRequest(http.MethodPut, base+"/collections/pl/items", strings.NewReader(`{"items":["a","b","c"]}`))
			convey.So(err, convey.ShouldBeNil)
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			resp, err = client.Get(base + "/collections/pl/matchup")
			convey.So(err, convey.ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			convey.Convey("Then the server answers with a matchup", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(string(body), convey.ShouldContainSubstring, `"collection":"pl"`)
			})
		})

		convey.Convey("When a registered collection is exported over HTTP", func() {
			req, err := http.NewRequest(http.MethodPut, base+"/collections/pl/items", strings.NewReader(`{"items":["a","b"]}`))
			convey.So(err, convey.ShouldBeNil)
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()

			resp, err = client.Post(base+"/collections/pl/export", "application/json", nil)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()

			convey.Convey("Then the file lands in the configured directory", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				_, err := os.Stat(filepath.Join(cfg.ExportDir, "pl.json"))
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("Then the metrics settings are applied", func() {
			convey.So(metrics.RefreshInterval(), convey.ShouldEqual, 40*time.Millisecond)
			convey.So(metrics.Enabled(), convey.ShouldBeTrue)
		})

		cancel()
		select {
		case err := <-done:
			convey.So(err, convey.ShouldBeNil)
		case <-time.After(10 * time.Second):
			convey.So("run", convey.ShouldEqual, "returned after cancel")
		}
	})
}

func waitHealthy(client *http.Client, base string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunRejectsBadStore(t *testing.T) {
	convey.Convey("Given a configuration whose store cannot open", t, func() {
		cfg := config.New()
		cfg.StoreBackend = config.BackendSQLite
		blocker := filepath.Join(t.TempDir(), "blocker")
		convey.So(os.WriteFile(blocker, []byte("x"), 0o600), convey.ShouldBeNil)
		cfg.SQLitePath = filepath.Join(blocker, "elorank.db")

		convey.Convey("Then run fails before serving", func() {
			err := run(context.Background(), cfg, nil)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metric updaters", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)

		convey.Convey("Then they stop with their context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)

			svc := app.New()
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("And a system sample does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
