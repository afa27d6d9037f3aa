// Package httpapi is a thin inbound HTTP seam: not a full REST
// surface (that is an external collaborator), just enough routing to
// exercise the orchestrator and the cache's read path.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"stackyn/server/internal/hostmeta"
	"stackyn/server/internal/model"
	"stackyn/server/internal/orchestrator"
	pkgcontext "stackyn/server/pkg/context"
)

// Server holds the dependencies the HTTP surface delegates to.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	cache        *hostmeta.Cache
	logger       *zap.Logger
}

// NewServer wires a chi router exposing the app lifecycle operations and
// a decorated listing.
func NewServer(o *orchestrator.Orchestrator, cache *hostmeta.Cache, logger *zap.Logger) http.Handler {
	s := &Server{orchestrator: o, cache: cache, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := pkgcontext.WithLogger(req.Context(), logger)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/apps", s.listApps)
	r.Post("/apps/{app}/services", s.startServices)
	r.Delete("/apps/{app}", s.stopApp)

	return r
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	services, err := s.orchestrator.GetServices(ctx)
	if err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}

	info := hostmeta.RequestInfo{BaseURL: baseURLFor(r)}
	enriched := s.cache.Decorate(services, info)
	body := make(map[string][]hostmeta.EnrichedService, len(enriched))
	for appName, svcs := range enriched {
		body[appName.String()] = svcs
	}
	s.writeJSON(w, r, http.StatusOK, body)
}

type startServicesRequest struct {
	Services []serviceConfigPayload `json:"services"`
}

type serviceConfigPayload struct {
	ServiceName   string   `json:"service_name"`
	Image         string   `json:"image"`
	Env           []string `json:"env"`
	ContainerType string   `json:"container_type"`
}

func (s *Server) startServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appName, err := model.NewAppName(chi.URLParam(r, "app"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var payload startServicesRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	configs := make([]model.ServiceConfig, 0, len(payload.Services))
	for _, sc := range payload.Services {
		image, err := model.ParseImageReference(sc.Image)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		containerType, err := model.ParseContainerType(sc.ContainerType)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		configs = append(configs, model.ServiceConfig{
			ServiceName:   sc.ServiceName,
			Image:         image,
			Env:           sc.Env,
			ContainerType: containerType,
		})
	}

	started, err := s.orchestrator.StartServices(ctx, appName, configs, model.ContainerConfig{})
	if err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, started)
}

func (s *Server) stopApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appName, err := model.NewAppName(chi.URLParam(r, "app"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	stopped, err := s.orchestrator.StopServices(ctx, appName)
	if err != nil {
		s.writeOrchestratorError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, stopped)
}

func baseURLFor(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		pkgcontext.LoggerFromContext(r.Context()).Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

// writeOrchestratorError maps an orchestrator.Error to its HTTP status by
// Kind, so ImageNotFound surfaces as a 404 instead of collapsing into a
// generic 500 alongside every other orchestrator failure.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, r *http.Request, err error) {
	var oerr *orchestrator.Error
	if errors.As(err, &oerr) && oerr.Kind == orchestrator.ImageNotFound {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}
	s.writeError(w, r, http.StatusInternalServerError, err)
}
