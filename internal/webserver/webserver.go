package webserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashlookup/internal/database"
	"github.com/y0ug/hashlookup/internal/database/models"
	"github.com/y0ug/hashlookup/internal/hashlookup"
)

const defaultPerPage = 50

// Classifier is the live lookup behind /api/lookup.
type Classifier interface {
	LookupDigest(ctx context.Context, digest string) (hashlookup.Classification, *hashlookup.Hashes, bool)
	Counters() *hashlookup.RunCounters
}

// WebServer holds the data needed for handling HTTP requests.
type WebServer struct {
	Classifier Classifier
	Database   database.Database
	config     *WebserverConfig
	Logger     *logrus.Logger
}

// NewWebServer initializes a new WebServer.
func NewWebServer(classifier Classifier, db database.Database, config *WebserverConfig, logger *logrus.Logger) *WebServer {
	return &WebServer{
		Classifier: classifier,
		Database:   db,
		config:     config,
		Logger:     logger,
	}
}

// StartWebServer starts the HTTP server.
func StartWebServer(ctx context.Context, ws *WebServer) (*http.Server, error) {
	corsOptions := cors.Options{
		AllowedOrigins: ws.config.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		Debug:          false,
	}
	handler := cors.New(corsOptions).Handler(ws.InitRouter())

	server := &http.Server{
		Addr:    ws.config.ListenTo,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		ws.Logger.Infof("Server starting on %s", ws.config.ListenTo)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.Logger.Errorf("ListenAndServe(): %v", err)
		}
	}()

	return server, nil
}

// InitRouter initializes the HTTP routes.
func (ws *WebServer) InitRouter() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/lookup/{digest}", ws.handleLookup).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{job}/findings", ws.handleGetJobFindings).Methods(http.MethodGet)
	api.HandleFunc("/findings/{md5}", ws.handleGetDigestFindings).Methods(http.MethodGet)
	api.HandleFunc("/stats", ws.handleGetStats).Methods(http.MethodGet)
	return r
}

// handleLookup handles the GET /api/lookup/{digest} endpoint.
func (ws *WebServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["digest"]
	digest, err := hashlookup.NormalizeDigest(raw)
	if err != nil {
		WriteErrorResponse(w, "Invalid digest", http.StatusBadRequest)
		return
	}

	c, hashes, ok := ws.Classifier.LookupDigest(r.Context(), string(digest))
	if !ok {
		WriteErrorResponse(w, "No information for digest "+string(digest), http.StatusNotFound)
		return
	}

	WriteSuccessResponse(w, "Digest classified", models.LookupResponse{
		Digest:         string(digest),
		Classification: &c,
		Hashes:         hashes,
	})
}

// handleGetJobFindings handles the GET /api/jobs/{job}/findings endpoint.
func (ws *WebServer) handleGetJobFindings(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job"]

	query := r.URL.Query()
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(query.Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}

	findings, total, err := ws.Database.GetFindingsByJob(r.Context(), jobID, page, perPage)
	if err != nil {
		ws.Logger.WithError(err).WithField("job", jobID).Error("Failed to load findings")
		WriteErrorResponse(w, "Failed to retrieve findings", http.StatusInternalServerError)
		return
	}

	WriteSuccessResponse(w, "Findings retrieved successfully", models.FindingsResponse{
		Findings:   findings,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

// handleGetDigestFindings handles the GET /api/findings/{md5} endpoint.
func (ws *WebServer) handleGetDigestFindings(w http.ResponseWriter, r *http.Request) {
	md5 := mux.Vars(r)["md5"]
	findings, err := ws.Database.GetFindingsByMD5(r.Context(), md5)
	if errors.Is(err, database.ErrFindingNotFound) {
		WriteErrorResponse(w, "Finding not found", http.StatusNotFound)
		return
	}
	if err != nil {
		ws.Logger.WithError(err).Errorf("Failed to get findings for %s", md5)
		WriteErrorResponse(w, "Failed to retrieve findings", http.StatusInternalServerError)
		return
	}

	WriteSuccessResponse(w, "Findings retrieved successfully", models.FindingsResponse{
		Findings:   findings,
		Page:       1,
		PerPage:    len(findings),
		Total:      len(findings),
		TotalPages: 1,
	})
}

// handleGetStats handles the GET /api/stats endpoint.
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := ws.Database.GetStats(r.Context())
	if err != nil {
		ws.Logger.WithError(err).Error("Failed to retrieve stats")
		WriteErrorResponse(w, "Failed to retrieve statistics", http.StatusInternalServerError)
		return
	}
	stats.Classified = ws.Classifier.Counters().Load()

	WriteSuccessResponse(w, "Statistics retrieved successfully", stats)
}
