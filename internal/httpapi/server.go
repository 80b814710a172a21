// Package httpapi exposes corpusd operations over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/project"
	"github.com/fyrsmithlabs/corpusd/internal/reconciler"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/retrieval"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// Server is the HTTP surface over the project manager, reconciler and
// retrieval planner.
type Server struct {
	echo       *echo.Echo
	manager    *project.Manager
	reconciler *reconciler.Reconciler
	planner    *retrieval.Planner
	logger     *zap.Logger
}

// NewServer wires routes onto a fresh echo instance.
func NewServer(manager *project.Manager, rec *reconciler.Reconciler, planner *retrieval.Planner, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		manager:    manager,
		reconciler: rec,
		planner:    planner,
		logger:     logger.Named("httpapi"),
	}

	v1 := e.Group("/v1/projects/:project")
	v1.POST("/documents", s.handleRegister)
	v1.GET("/documents", s.handleListDocuments)
	v1.DELETE("/documents/:id", s.handleDelete)
	v1.POST("/sync", s.handleSync)
	v1.POST("/query", s.handleQuery)
	v1.POST("/clean-orphans", s.handleCleanOrphans)
	v1.GET("/status", s.handleStatus)

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type registerRequest struct {
	Path     string `json:"path"`
	DocType  string `json:"doc_type"`
	Year     int    `json:"year"`
	Citation string `json:"citation"`
	Content  string `json:"content"`
}

type registerResponse struct {
	ID          int64  `json:"id"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	Created     bool   `json:"created"`
}

func (s *Server) handleRegister(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	doc, created, err := h.Registry().Register(c.Request().Context(), registry.RegisterRequest{
		Path:     req.Path,
		DocType:  req.DocType,
		Year:     req.Year,
		Citation: req.Citation,
		Content:  []byte(req.Content),
	})
	if err != nil {
		return s.fail(c, err)
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return c.JSON(code, registerResponse{
		ID:          doc.ID,
		ContentHash: doc.ContentHash,
		Status:      doc.Status,
		Created:     created,
	})
}

func (s *Server) handleListDocuments(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	docs, err := h.Registry().ListAll(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDelete(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	result, err := s.reconciler.Delete(c.Request().Context(), h, id)
	if err != nil {
		return s.fail(c, err)
	}

	resp := map[string]any{
		"document_id":     result.DocumentID,
		"matched":         result.Matched,
		"deleted":         result.Deleted,
		"expected_chunks": result.ExpectedChunks,
		"by_confidence":   result.ByConfidence,
	}
	if result.Warning != nil {
		resp["warning"] = result.Warning.String()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSync(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	result, err := s.reconciler.Sync(c.Request().Context(), h)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type queryRequest struct {
	Query    string   `json:"query"`
	K        int      `json:"k"`
	DocTypes []string `json:"doc_types"`
	YearFrom *int     `json:"year_from"`
	YearTo   *int     `json:"year_to"`
}

func (s *Server) handleQuery(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	filter := &vectorstore.Filter{
		DocTypes: req.DocTypes,
		YearFrom: req.YearFrom,
		YearTo:   req.YearTo,
	}

	result, err := s.planner.Query(c.Request().Context(), h, req.Query, filter, req.K)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCleanOrphans(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	result, err := s.reconciler.CleanOrphans(c.Request().Context(), h)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStatus(c echo.Context) error {
	h, release, err := s.acquire(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer release()

	status, err := s.reconciler.Status(c.Request().Context(), h)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// acquire resolves the project handle for a request. The returned release
// func must run after the handler finishes.
func (s *Server) acquire(c echo.Context) (*project.Handle, func(), error) {
	name := c.Param("project")
	h, err := s.manager.Acquire(c.Request().Context(), name)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := s.manager.Release(name); err != nil {
			s.logger.Warn("releasing project handle", zap.String("project", name), zap.Error(err))
		}
	}
	return h, release, nil
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, project.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, project.ErrProjectNotFound),
		errors.Is(err, vectorstore.ErrCollectionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, vectorstore.ErrInvalidFilter),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, registry.ErrInvalidRequest),
		errors.Is(err, project.ErrInvalidName),
		errors.Is(err, embeddings.ErrMalformedInput):
		code = http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrUnavailable),
		errors.Is(err, embeddings.ErrUnavailable),
		errors.Is(err, embeddings.ErrRateLimited):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return echo.NewHTTPError(code, err.Error())
}
