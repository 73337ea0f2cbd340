// Command shelfview serves a read-only JSON view over the harvested
// catalog for collaborator dashboards. It never writes to the
// database.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pricecheckph/shelfwatch/catalog"
	"github.com/pricecheckph/shelfwatch/idgen"
	"github.com/pricecheckph/shelfwatch/product"
)

func main() {
	var (
		addr   = flag.String("addr", ":8091", "listen address")
		dbPath = flag.String("db", "data/catalog.db", "catalog database path")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	store, err := catalog.Open(*dbPath)
	if err != nil {
		logger.Error("open catalog", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := &server{store: store, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", srv.healthz)
	r.Get("/products", srv.products)
	r.Get("/runs", srv.runs)

	logger.Info("shelfview listening", "addr", *addr, "db", *dbPath)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type server struct {
	store *catalog.Store
	log   *slog.Logger
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) products(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID != "" {
		// Run IDs are UUIDs; reject anything else before it reaches SQL.
		id, err := idgen.Parse(runID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run_id"})
			return
		}
		runID = id
	}
	q := catalog.Query{
		RunID:   runID,
		NameHas: r.URL.Query().Get("q"),
		SortBy:  r.URL.Query().Get("sort"),
		Desc:    r.URL.Query().Get("order") == "desc",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}

	products, err := s.store.Search(r.Context(), q)
	if err != nil {
		s.queryError(w, err)
		return
	}
	if products == nil {
		products = []*product.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *server) runs(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		s.queryError(w, err)
		return
	}
	if runs == nil {
		runs = []*catalog.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) queryError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNoCatalog) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no catalog yet, run the harvester first",
		})
		return
	}
	s.log.Error("query failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
