package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovo/nbstats/internal/archive"
	"github.com/rovo/nbstats/internal/config"
	"github.com/rovo/nbstats/internal/metrics"
	"github.com/rovo/nbstats/internal/watch"
	"github.com/rovo/nbstats/svm"
	"github.com/rovo/nbstats/tokenize"
	"github.com/rovo/nbstats/training"
	"github.com/rovo/nbstats/trainingdata"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

var categoryPathPattern = regexp.MustCompile(`^[-_A-Za-z0-9]+$`)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var (
	makeSignalChannel = func() chan os.Signal { return make(chan os.Signal, 1) }
	notifySignals     = func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
	newServer         = func(addr string, handler http.Handler) httpServer {
		return &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       30 * time.Second,
		}
	}
	runServe = func(cfg *config.Config, logger *zap.Logger) error {
		api, err := NewStatsAPI(cfg, logger)
		if err != nil {
			return err
		}
		if cfg.Archive.Path != "" {
			if err := api.OpenArchive(cfg.Archive.Path); err != nil {
				return err
			}
		}
		defer api.Close()

		if cfg.Model.LoadOnStart {
			api.loadModelIfPresent()
		}

		var watcher *watch.Watcher
		if cfg.Model.Watch {
			watcher, err = watch.New(cfg.Model.Path(), api.store,
				watch.WithLogger(logger),
				watch.OnReload(func(ok bool) {
					metrics.RecordPersistence("reload", ok)
					metrics.ObserveStore(api.store)
				}))
			if err != nil {
				return err
			}
		}

		mux := http.NewServeMux()
		api.RegisterRoutes(mux)
		api.ready.Store(true)

		server := newServer(":"+strconv.Itoa(cfg.Server.Port), withAuthorizationToken(mux, cfg.Server.AuthToken))
		logger.Info("Server is listening", zap.Int("port", cfg.Server.Port))

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server stopped unexpectedly", zap.Error(err))
			}
		}()

		sigCh := makeSignalChannel()
		notifySignals(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		api.ready.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := server.Shutdown(ctx)

		if watcher != nil {
			watcher.Stop()
		}
		if cfg.Model.SaveOnShutdown {
			_ = api.store.SaveData(cfg.Model.Dir, cfg.Model.Name)
		}

		return shutdownErr
	}
)

// StatsAPI serves the training statistics over HTTP.
type StatsAPI struct {
	store     *trainingdata.Store[string, string]
	trainer   *training.Trainer[string]
	tokenizer *tokenize.Tokenizer
	archive   *archive.Archive
	model     config.ModelConfig
	svmType   svm.Type
	logger    *zap.Logger
	ready     atomic.Bool
}

// NewStatsAPI builds the store and tokenizer described by cfg. The snapshot
// archive stays disabled until OpenArchive is called.
func NewStatsAPI(cfg *config.Config, logger *zap.Logger) (*StatsAPI, error) {
	tokenizer, err := newTokenizer(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	trainer := training.NewTrainer(newStore(cfg.Model, logger), tokenizer)

	api := &StatsAPI{
		store:     trainer.Store(),
		trainer:   trainer,
		tokenizer: tokenizer,
		model:     cfg.Model,
		svmType:   svm.Parse(cfg.Model.SVMType),
		logger:    logger,
	}
	return api, nil
}

// OpenArchive enables the snapshot routes backed by the bbolt file at path.
func (c *StatsAPI) OpenArchive(path string) error {
	a, err := archive.Open(path)
	if err != nil {
		return err
	}
	c.archive = a
	return nil
}

func newTokenizer(cfg config.TokenizerConfig) (*tokenize.Tokenizer, error) {
	return tokenize.New(
		tokenize.WithLanguage(cfg.Language),
		tokenize.WithStemming(cfg.Stem),
		tokenize.WithMinLength(cfg.MinLength),
	)
}

func newStore(cfg config.ModelConfig, logger *zap.Logger) *trainingdata.Store[string, string] {
	opts := []trainingdata.Option{trainingdata.WithLogger(logger)}
	if cfg.LegacySampleCounting {
		opts = append(opts, trainingdata.WithLegacySampleCounting())
	}
	return trainingdata.New[string, string](opts...)
}

// Close releases the snapshot archive, if any.
func (c *StatsAPI) Close() error {
	if c.archive != nil {
		return c.archive.Close()
	}
	return nil
}

func (c *StatsAPI) loadModelIfPresent() {
	path := c.model.Path()
	if _, err := os.Stat(path); err != nil {
		c.logger.Info("No training data to load", zap.String("path", path))
		return
	}
	ok := c.store.LoadData(path)
	metrics.RecordPersistence("load", ok)
	metrics.ObserveStore(c.store)
}

// RegisterRoutes registers all API routes on the provided ServeMux.
func (c *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/info", c.InfoHandler)
	mux.HandleFunc("/train/", c.TrainHandler)
	mux.HandleFunc("/samples/", c.SamplesHandler)
	mux.HandleFunc("/count", c.CountHandler)
	mux.HandleFunc("/categories/", c.CategoryHandler)
	mux.HandleFunc("/save", c.SaveHandler)
	mux.HandleFunc("/load", c.LoadHandler)
	mux.HandleFunc("/flush", c.FlushHandler)
	mux.HandleFunc("/snapshots", c.ListSnapshotsHandler)
	mux.HandleFunc("/snapshots/", c.SnapshotHandler)
	mux.HandleFunc("/restore/", c.RestoreHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/readyz", c.ReadyHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

var publicPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// withAuthorizationToken requires a bearer token on every non-public route.
// An empty token disables the check.
func withAuthorizationToken(next http.Handler, token string) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if publicPaths[req.URL.Path] {
			next.ServeHTTP(w, req)
			return
		}

		scheme, provided, found := strings.Cut(req.Header.Get("Authorization"), " ")
		if !found || scheme != "Bearer" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nbstats"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	jsonResponse, err := json.Marshal(value)
	if err != nil {
		http.Error(w, `{"error":"failed to marshal response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonResponse); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readBody(w http.ResponseWriter, req *http.Request) (string, bool) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBodyBytes)
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return "", false
	}

	return string(body), true
}

func nameFromPath(path, prefix string) (string, bool) {
	name := strings.TrimPrefix(path, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}

	if !categoryPathPattern.MatchString(name) {
		return "", false
	}

	return name, true
}

func requireMethod(w http.ResponseWriter, req *http.Request, methods ...string) bool {
	for _, method := range methods {
		if req.Method == method {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (c *StatsAPI) sortedCategories() []string {
	names := c.store.Categories()
	sort.Strings(names)
	return names
}

// InfoHandler returns the current training statistics.
func (c *StatsAPI) InfoHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, NewInfoResponse(c))
}

// TrainHandler records the request body as one sample of a category.
func (c *StatsAPI) TrainHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	category, ok := nameFromPath(req.URL.Path, "/train/")
	if !ok {
		writeError(w, http.StatusNotFound, "invalid category route")
		return
	}

	body, ok := readBody(w, req)
	if !ok {
		return
	}

	features := c.trainer.Train(category, body)
	metrics.RecordTraining(features)
	metrics.ObserveStore(c.store)

	writeJSON(w, http.StatusOK, &TrainingResponse{
		Success:    true,
		Category:   category,
		Features:   features,
		Categories: c.sortedCategories(),
	})
}

// SamplesHandler returns the sample count of a category.
func (c *StatsAPI) SamplesHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	category, ok := nameFromPath(req.URL.Path, "/samples/")
	if !ok {
		writeError(w, http.StatusNotFound, "invalid category route")
		return
	}

	writeJSON(w, http.StatusOK, &SamplesResponse{
		Category: category,
		Known:    c.store.ContainsCategory(category),
		Samples:  c.store.NumberOfSamplesForCategory(category),
	})
}

// CountHandler returns how often a feature occurred, in one category or in all.
// The query term goes through the training tokenizer first, so it is matched
// in the same form training recorded it.
func (c *StatsAPI) CountHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	query := req.URL.Query()
	term := query.Get("feature")
	if term == "" {
		writeError(w, http.StatusBadRequest, "feature query parameter is required")
		return
	}
	feature, ok := c.tokenizer.Normalize(term)
	if !ok {
		writeError(w, http.StatusBadRequest, "feature must be a single word")
		return
	}

	response := &CountResponse{Feature: feature, Category: query.Get("category")}
	if response.Category == "" {
		response.Count = c.store.TotalFeatureCount(feature)
	} else {
		response.Count = int64(c.store.FeatureCount(feature, response.Category))
	}
	writeJSON(w, http.StatusOK, response)
}

// CategoryHandler returns the counters of one category.
func (c *StatsAPI) CategoryHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	name, ok := nameFromPath(req.URL.Path, "/categories/")
	if !ok {
		writeError(w, http.StatusNotFound, "invalid category route")
		return
	}

	entry, ok := c.store.Entry(name)
	if !ok {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}
	writeJSON(w, http.StatusOK, NewCategoryResponse(name, entry))
}

// SaveHandler persists the store to the configured model file.
func (c *StatsAPI) SaveHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	err := c.store.SaveData(c.model.Dir, c.model.Name)
	metrics.RecordPersistence("save", err == nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save training data")
		return
	}
	writeJSON(w, http.StatusOK, &PersistenceResponse{Success: true, Target: c.model.Path()})
}

// LoadHandler replaces the store with the configured model file.
func (c *StatsAPI) LoadHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	ok := c.store.LoadData(c.model.Path())
	metrics.RecordPersistence("load", ok)
	metrics.ObserveStore(c.store)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "failed to load training data, state unchanged")
		return
	}
	writeJSON(w, http.StatusOK, &PersistenceResponse{Success: true, Target: c.model.Path()})
}

// FlushHandler deletes all training data and gives us a fresh slate.
func (c *StatsAPI) FlushHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	c.store.Reset()
	metrics.ObserveStore(c.store)

	writeJSON(w, http.StatusOK, NewInfoResponse(c))
}

func (c *StatsAPI) requireArchive(w http.ResponseWriter) bool {
	if c.archive == nil {
		writeError(w, http.StatusNotFound, "snapshot archive is disabled")
		return false
	}
	return true
}

// ListSnapshotsHandler lists archived snapshot names.
func (c *StatsAPI) ListSnapshotsHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) || !c.requireArchive(w) {
		return
	}

	names, err := c.archive.List()
	if err != nil {
		c.logger.Error("Failed to list snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, &SnapshotsResponse{Snapshots: names})
}

// SnapshotHandler stores the current training data under a name on POST and
// drops the named snapshot on DELETE.
func (c *StatsAPI) SnapshotHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost, http.MethodDelete) || !c.requireArchive(w) {
		return
	}

	name, ok := nameFromPath(req.URL.Path, "/snapshots/")
	if !ok {
		writeError(w, http.StatusNotFound, "invalid snapshot route")
		return
	}

	if req.Method == http.MethodDelete {
		err := c.archive.Delete(name)
		metrics.RecordPersistence("delete", err == nil)
		if err != nil {
			c.logger.Error("Failed to delete snapshot", zap.String("snapshot", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to delete snapshot")
			return
		}
		writeJSON(w, http.StatusOK, &PersistenceResponse{Success: true, Target: name})
		return
	}

	err := c.archive.Put(name, c.store)
	metrics.RecordPersistence("snapshot", err == nil)
	if err != nil {
		c.logger.Error("Failed to store snapshot", zap.String("snapshot", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store snapshot")
		return
	}
	writeJSON(w, http.StatusOK, &PersistenceResponse{Success: true, Target: name})
}

// RestoreHandler replaces the training data with a named snapshot.
func (c *StatsAPI) RestoreHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) || !c.requireArchive(w) {
		return
	}

	name, ok := nameFromPath(req.URL.Path, "/restore/")
	if !ok {
		writeError(w, http.StatusNotFound, "invalid snapshot route")
		return
	}

	err := c.archive.Restore(name, c.store)
	metrics.RecordPersistence("restore", err == nil)
	metrics.ObserveStore(c.store)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	case err != nil:
		c.logger.Error("Failed to restore snapshot", zap.String("snapshot", name), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "failed to restore snapshot, state unchanged")
		return
	}
	writeJSON(w, http.StatusOK, &PersistenceResponse{Success: true, Target: name})
}

// HealthHandler returns liveness status for process health checks.
func HealthHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler returns readiness status for traffic checks.
func (c *StatsAPI) ReadyHandler(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}
	if !c.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
