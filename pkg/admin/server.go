package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bramburn/ntripstation/pkg/config"
	"github.com/bramburn/ntripstation/pkg/registry"
)

// Server wraps http.Server, providing the admin API over the config Store
// and session Registry.
type Server struct {
	http.Server

	store  *config.Store
	reg    *registry.Registry
	logger logrus.FieldLogger
}

// New builds a Server bound to addr, routing through gorilla/mux and basic
// auth middleware sourced from the current config snapshot.
func New(addr string, store *config.Store, reg *registry.Registry, logger logrus.FieldLogger) *Server {
	s := &Server{store: store, reg: reg, logger: logger}

	router := mux.NewRouter()
	router.Use(s.basicAuthMiddleware)
	router.HandleFunc("/api/stations", s.handleListStations).Methods(http.MethodGet)
	router.HandleFunc("/api/stations", s.handleAddStation).Methods(http.MethodPost)
	router.HandleFunc("/api/stations/{mount}", s.handleReplaceStation).Methods(http.MethodPut)
	router.HandleFunc("/api/stations/{mount}", s.handleDeleteStation).Methods(http.MethodDelete)
	router.HandleFunc("/api/sessions", s.handleListSessions).Methods(http.MethodGet)
	router.HandleFunc("/api/reload", s.handleReload).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:        addr,
		Handler:     router,
		IdleTimeout: 10 * time.Second,
	}
	return s
}

// basicAuthMiddleware rejects requests lacking matching credentials. If the
// current config has no admin username configured, the admin API is
// disabled entirely rather than left open.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.store.Get()
		if cfg.AdminUsername == "" {
			http.Error(w, "admin API disabled", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		validUser := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.AdminUsername)) == 1
		validPass := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.AdminPassword)) == 1
		if !ok || !validUser || !validPass {
			w.Header().Set("WWW-Authenticate", `Basic realm="ntripstation admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Get()
	writeJSON(w, http.StatusOK, cfg.Stations)
}

// handleAddStation appends a new station to the config and republishes it.
func (s *Server) handleAddStation(w http.ResponseWriter, r *http.Request) {
	var station config.Station
	if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
		http.Error(w, fmt.Sprintf("decoding body: %v", err), http.StatusBadRequest)
		return
	}

	cfg := s.store.Get()
	cfg.Stations = append(append([]config.Station{}, cfg.Stations...), station)
	if err := s.store.Replace(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.logger.WithField("mount", station.MountPoint).Info("admin added station")
	writeJSON(w, http.StatusCreated, station)
}

// handleReplaceStation overwrites the fields of the station named by the
// {mount} path segment, leaving every other station untouched.
func (s *Server) handleReplaceStation(w http.ResponseWriter, r *http.Request) {
	mount := mux.Vars(r)["mount"]

	var updated config.Station
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, fmt.Sprintf("decoding body: %v", err), http.StatusBadRequest)
		return
	}

	cfg := s.store.Get()
	cfg.Stations = append([]config.Station{}, cfg.Stations...)
	found := false
	for i := range cfg.Stations {
		if cfg.Stations[i].MountPoint == mount {
			updated.MountPoint = mount
			cfg.Stations[i] = updated
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "station not found", http.StatusNotFound)
		return
	}

	if err := s.store.Replace(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.logger.WithField("mount", mount).Info("admin replaced station")
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteStation removes the station named by {mount}.
func (s *Server) handleDeleteStation(w http.ResponseWriter, r *http.Request) {
	mount := mux.Vars(r)["mount"]

	cfg := s.store.Get()
	out := make([]config.Station, 0, len(cfg.Stations))
	found := false
	for _, st := range cfg.Stations {
		if st.MountPoint == mount {
			found = true
			continue
		}
		out = append(out, st)
	}
	if !found {
		http.Error(w, "station not found", http.StatusNotFound)
		return
	}
	cfg.Stations = out

	if err := s.store.Replace(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.logger.WithField("mount", mount).Info("admin deleted station")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Get())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
