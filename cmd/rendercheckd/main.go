// Command rendercheckd serves verification runs over HTTP and keeps their
// screenshots and records on disk.
package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/api"
	"github.com/dgnsrekt/rendercheck/internal/artifact"
	"github.com/dgnsrekt/rendercheck/internal/browser"
	"github.com/dgnsrekt/rendercheck/internal/config"
	"github.com/dgnsrekt/rendercheck/internal/events"
	"github.com/dgnsrekt/rendercheck/internal/journal"
	"github.com/dgnsrekt/rendercheck/internal/netutil"
	"github.com/dgnsrekt/rendercheck/internal/notify"
	"github.com/dgnsrekt/rendercheck/internal/service"
	"github.com/dgnsrekt/rendercheck/internal/verify"
)

func main() {
	cfg, err := config.LoadService()
	if err != nil {
		slog.Error("failed to load service config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("rendercheckd config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"driver", cfg.Driver,
		"cdp_url", cfg.CDPURL,
		"default_target_url", cfg.TargetURL,
		"artifact_dir", cfg.ArtifactDir,
		"journal_dir", cfg.JournalDir,
		"notify", cfg.NotifyURL != "",
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	driver, err := browser.New(cfg.BrowserConfig())
	if err != nil {
		slog.Error("failed to create browser driver", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}

	store, err := artifact.NewStore(cfg.ArtifactDir)
	if err != nil {
		slog.Error("failed to create artifact store", "dir", cfg.ArtifactDir, "error", err)
		os.Exit(1)
	}

	svc := service.NewService(verify.NewRunner(driver), store, cfg.Options())

	if cfg.JournalDir != "" {
		j := journal.New(cfg.JournalDir, 64, cfg.JournalMaxSizeMB)
		defer func() {
			if err := j.Close(); err != nil {
				slog.Warn("journal close failed", "error", err)
			}
		}()
		svc.SetJournal(j)
	}

	if cfg.NotifyURL != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		svc.SetNotify(func(ctx context.Context, out verify.Outcome) {
			if !cfg.ShouldNotify(out.OK) {
				return
			}
			// The request may already be gone; the notification still goes out.
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := notify.SendOutcome(nctx, client, cfg.NotifyURL, out); err != nil {
				slog.Warn("notification failed", "endpoint", cfg.NotifyURL, "error", err)
			}
		})
	}

	broker := events.NewBroker()
	svc.SetEvents(broker)

	h := api.NewServer(svc, api.WithEventStream(events.Handler(broker)))
	// Canceled on signal so an in-flight run stops instead of outliving
	// the shutdown timeout.
	baseCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	srv := &http.Server{
		Addr:        bindAddr,
		Handler:     h,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(broker.Close)

	go func() {
		slog.Info("rendercheckd listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("rendercheckd server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancelRuns()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("rendercheckd shutdown failed", "error", err)
	}
	if n := driver.LiveSessions(); n > 0 {
		slog.Warn("browser sessions still open at shutdown", "sessions", n, "pages", driver.LivePages())
	}
}
