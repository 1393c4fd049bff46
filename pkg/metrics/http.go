package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/NicolasHaas/gomoderate/pkg/version"
)

// Serve starts a lightweight HTTP server that exposes /metrics in Prometheus
// text exposition format, plus /healthz. It runs in the background and shuts
// down when ctx is cancelled. An empty addr disables it.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

// Handler returns the metrics router.
func (m *Metrics) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", m.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (m *Metrics) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP moderation_build_info Build version.\n# TYPE moderation_build_info gauge\n")
	_, _ = fmt.Fprintf(w, "moderation_build_info{version=%q} 1\n", version.String())

	_, _ = fmt.Fprintf(w, "# HELP moderation_uptime_seconds Uptime in seconds.\n# TYPE moderation_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "moderation_uptime_seconds %f\n", uptime)

	write("moderation_online_players", "Sessions currently tracked.", "gauge", m.OnlinePlayers.Load())

	write("moderation_bans_total", "Bans persisted.", "counter", m.Bans.Load())
	write("moderation_mutes_total", "Mutes persisted.", "counter", m.Mutes.Load())
	write("moderation_kicks_total", "Kicks persisted.", "counter", m.Kicks.Load())
	write("moderation_warnings_total", "Warnings persisted.", "counter", m.Warnings.Load())
	write("moderation_revocations_total", "Unbans and unmutes applied.", "counter", m.Revocations.Load())

	write("moderation_commands_denied_total", "Commands refused before persisting.", "counter", m.CommandsDenied.Load())
	write("moderation_storage_errors_total", "Record store failures.", "counter", m.StorageErrors.Load())
	write("moderation_notify_failures_total", "Notification sink failures.", "counter", m.NotifyFailures.Load())

	write("moderation_logins_checked_total", "Login checks run.", "counter", m.LoginsChecked.Load())
	write("moderation_logins_denied_total", "Logins refused by an active ban.", "counter", m.LoginsDenied.Load())
	write("moderation_chat_denied_total", "Chat messages blocked by a mute.", "counter", m.ChatDenied.Load())
	write("moderation_chat_held_total", "Chat messages held while mute state loads.", "counter", m.ChatHeld.Load())
}
