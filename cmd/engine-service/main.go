// engine-service is the on-device inference runtime process: it discovers
// and registers runners, then serves the typed ingress API over HTTP until
// signalled to stop.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/catalog"
	"github.com/edgerunner/engine/pkg/engine/config"
	"github.com/edgerunner/engine/pkg/engine/coordinator"
	"github.com/edgerunner/engine/pkg/engine/discovery"
	"github.com/edgerunner/engine/pkg/engine/httpapi"
	"github.com/edgerunner/engine/pkg/engine/manager"
	"github.com/edgerunner/engine/pkg/engine/metrics"
	"github.com/edgerunner/engine/pkg/engine/registry"
	"github.com/edgerunner/engine/pkg/engine/reload"
	"github.com/edgerunner/engine/pkg/engine/router"
	"github.com/edgerunner/engine/pkg/engine/settings"
	"github.com/edgerunner/engine/pkg/engine/state"
	"github.com/edgerunner/engine/pkg/logging"

	_ "github.com/edgerunner/engine/pkg/runners/executorch"
	_ "github.com/edgerunner/engine/pkg/runners/guardian"
	_ "github.com/edgerunner/engine/pkg/runners/llamastack"
	_ "github.com/edgerunner/engine/pkg/runners/mediatek"
	_ "github.com/edgerunner/engine/pkg/runners/openrouter"
	_ "github.com/edgerunner/engine/pkg/runners/sherpa"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.FromEnv()
	if err != nil {
		logrus.Fatalf("engine-service: invalid configuration: %v", err)
	}

	log := newLogger(cfg)

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalf("engine-service: %v", err)
	}
}

// newLogger builds the configured Logger backend. "slog" exercises the
// teacher's logrus-to-slog migration path; anything else (including unset)
// keeps the logrus-backed default.
func newLogger(cfg config.Config) logging.Logger {
	if cfg.LogBackend == "slog" {
		level := slogLevelFor(cfg.LogLevel)
		return logging.NewSlogLogger(level, os.Stderr)
	}

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	return logging.NewLogrusAdapter(logger)
}

func slogLevelFor(level logrus.Level) slog.Level {
	switch {
	case level <= logrus.ErrorLevel:
		return slog.LevelError
	case level <= logrus.WarnLevel:
		return slog.LevelWarn
	case level <= logrus.InfoLevel:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	reg := registry.New(log)

	metricsProvider, err := metrics.NewProvider()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsProvider.Shutdown(shutdownCtx); err != nil {
			log.Warnf("engine-service: metrics shutdown: %v", err)
		}
	}()

	settingsStore, err := settings.New(log, cfg.SettingsPath)
	if err != nil {
		return err
	}

	probe, err := discovery.ProbeHost(log, discovery.HostProbe{})
	if err != nil {
		return err
	}

	compileTimeEntries := catalog.Entries()

	disc := discovery.New(log, reg, compileTimeEntries, metricsProvider.Prometheus)
	registered, skipped := disc.Run(ctx, probe)
	log.Infof("engine-service: discovery registered %d runners, skipped %d", registered, skipped)

	if cfg.CatalogPath != "" {
		loadExternalCatalog(log, reg, probe, cfg.CatalogPath, compileTimeEntries)
	}

	mgr := manager.New(log, reg, settingsStore, metricsProvider.OTel)
	mgr.SetDefaults(settingsStore.Current().SelectedRunners)

	pub := state.New()
	coord := coordinator.New(log, mgr, pub, metricsProvider.OTel)
	reloadMgr := reload.New(log, reg, mgr)
	reloadMgr.Subscribe(func(result reload.Result) {
		log.Infof("engine-service: reload applied: reloaded=%v unaffected=%d failed=%d",
			result.Reloaded, len(result.Unaffected), len(result.Failed))
	})

	rtr := router.New(log, coord)
	ingressHandler := httpapi.NewHandler(log, rtr, pub)

	mux := http.NewServeMux()
	mux.Handle("/", ingressHandler)
	mux.HandleFunc("PUT /v1/settings", settingsHandler(log, settingsStore, reloadMgr))
	mux.HandleFunc("GET /v1/settings", getSettingsHandler(settingsStore))
	mux.HandleFunc("GET /v1/runners", listRunnersHandler(reg))

	refreshRegisteredRunnerGauge(metricsProvider, reg)

	httpAddr := os.Getenv("ENGINE_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8089"
	}
	server := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("engine-service: listening on %s", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	var metricsServer *http.Server
	metricsErrors := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(metricsProvider.Registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Infof("engine-service: metrics listening on %s", cfg.MetricsAddr)
			metricsErrors <- metricsServer.ListenAndServe()
		}()
	} else {
		log.Infoln("engine-service: metrics endpoint disabled")
		metricsErrors = nil
	}

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("engine-service: server error: %v", err)
		}
	case err := <-metricsErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("engine-service: metrics server error: %v", err)
		}
	case <-ctx.Done():
		log.Infoln("engine-service: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("engine-service: server shutdown: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("engine-service: metrics server shutdown: %v", err)
		}
	}

	mgr.ForceCleanupAll(shutdownCtx)
	log.Infoln("engine-service: stopped")
	return nil
}

// settingsHandler accepts a full EngineSettings replacement, persists it,
// and drives the reload manager's diff-and-reload pass (spec.md §4.7) over
// the transition from the previously persisted snapshot.
func settingsHandler(log logging.Logger, store *settings.Store, reloadMgr *reload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var next engine.EngineSettings
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			http.Error(w, "invalid settings body: "+err.Error(), http.StatusBadRequest)
			return
		}

		previous := store.Current()
		if err := store.Save(next); err != nil {
			http.Error(w, "failed to persist settings: "+err.Error(), http.StatusInternalServerError)
			return
		}

		result := reloadMgr.Apply(r.Context(), previous, next)
		log.Infof("engine-service: settings update applied: reloaded=%v failed=%d", result.Reloaded, len(result.Failed))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reloaded":   result.Reloaded,
			"unaffected": result.Unaffected,
			"failed":     result.Failed,
		})
	}
}

func getSettingsHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(store.Current())
	}
}

func listRunnersHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := reg.GetAll()
		descriptors := make([]engine.RunnerDescriptor, 0, len(all))
		for _, d := range all {
			descriptors = append(descriptors, d)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(descriptors)
	}
}

func refreshRegisteredRunnerGauge(provider *metrics.Provider, reg *registry.Registry) {
	for _, capability := range reg.SupportedCapabilities() {
		count := len(reg.GetAllByCapability(capability))
		provider.Prometheus.RegisteredRunners.WithLabelValues(string(capability)).Set(float64(count))
	}
}

// loadExternalCatalog reads an operator-supplied JSON/YAML catalog file that
// tunes descriptor fields (priority, enabled, hardware requirements) for
// runners already linked into the binary, and registers the survivors
// against the same host probe used for compile-time discovery.
func loadExternalCatalog(log logging.Logger, reg *registry.Registry, probe discovery.HostProbe, path string, compileTimeEntries []discovery.CatalogEntry) {
	factories := make(map[string]engine.Factory, len(compileTimeEntries))
	for _, entry := range compileTimeEntries {
		factories[entry.Descriptor.Name] = entry.Factory
	}

	entries, errs := catalog.LoadFile(path, factories)
	for _, err := range errs {
		log.Warnf("engine-service: external catalog: %v", err)
	}

	for _, entry := range entries {
		if !entry.Descriptor.Enabled {
			continue
		}
		if !discovery.IsSupported(probe, entry.Descriptor) {
			log.Infof("engine-service: external catalog entry %q unsupported on this host, skipping", entry.Descriptor.Name)
			continue
		}
		instance, err := entry.Factory()
		if err != nil {
			log.Warnf("engine-service: external catalog entry %q: factory failed: %v", entry.Descriptor.Name, err)
			continue
		}
		if !reg.Register(instance, entry.Descriptor) {
			log.Warnf("engine-service: external catalog entry %q failed capability soundness check, skipping", entry.Descriptor.Name)
		}
	}
}
