package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Routes collects the handlers mounted by NewRouter. Audit and StaticDir
// are optional.
type Routes struct {
	Assess    http.Handler
	List      http.Handler
	Audit     http.Handler
	StaticDir string
}

// NewRouter wires the HTTP surface
func NewRouter(rt Routes) *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Moderation operations with tracing
	router.Handle("/assess", otelhttp.NewHandler(rt.Assess, "POST /assess")).
		Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/list-uploads", otelhttp.NewHandler(rt.List, "GET /list-uploads")).
		Methods(http.MethodGet, http.MethodOptions)

	if rt.Audit != nil {
		router.Handle("/assessments", otelhttp.NewHandler(rt.Audit, "GET /assessments")).
			Methods(http.MethodGet, http.MethodOptions)
	}

	if rt.StaticDir != "" {
		files := http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(rt.StaticDir)))
		router.PathPrefix("/static/uploads/").Handler(files).Methods(http.MethodGet, http.MethodHead)
	}

	router.Use(mux.CORSMethodMiddleware(router), CORS)
	return router
}
