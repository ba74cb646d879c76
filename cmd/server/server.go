package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/report"
)

type server struct {
	svc      *costplan.Service
	log      *zap.Logger
	apiToken string
}

func newServer(svc *costplan.Service, log *zap.Logger, apiToken string) *server {
	return &server{svc: svc, log: log, apiToken: apiToken}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(acknowledgeWarnings)

		r.Get("/margin-types", s.handleListTypes)
		r.Post("/margin-types", s.handleCreateType)
		r.Put("/margin-types/{id}", s.handleUpdateType)
		r.Delete("/margin-types/{id}", s.handleDeleteType)

		r.Post("/plans", s.handleCreatePlan)
		r.Get("/plans/{id}", s.handleGetPlan)
		r.Post("/plans/{id}/recompute", s.handleRecompute)
		r.Patch("/plans/{id}/costs", s.handleUpdateCosts)
		r.Post("/plans/{id}/lines", s.handleCreateLine)
		r.Post("/plans/{id}/list-price/preview", s.handlePreviewListPrice)
		r.Post("/plans/{id}/list-price/confirm", s.handleConfirmListPrice)
		r.Post("/plans/{id}/product-price", s.handleProductPrice)
		r.Get("/plans/{id}/export.xlsx", s.handleExport)

		r.Put("/lines/{id}", s.handleUpdateLine)
		r.Delete("/lines/{id}", s.handleDeleteLine)
	})

	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.svc.ListTypes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *server) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var in costplan.TypeInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.CreateType(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *server) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	var in costplan.TypeUpdate
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.UpdateType(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteType(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var in costplan.PlanInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.CreatePlan(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var in costplan.CostSources
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.Recompute(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleUpdateCosts(w http.ResponseWriter, r *http.Request) {
	var in costplan.CostUpdate
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.UpdateCosts(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleCreateLine(w http.ResponseWriter, r *http.Request) {
	var in costplan.LineInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	line, err := s.svc.CreateLine(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (s *server) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var in costplan.LineUpdate
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	line, err := s.svc.UpdateLine(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (s *server) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteLine(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listPriceRequest struct {
	ListPrice *decimal.Decimal `json:"list_price"`
}

func decodeListPrice(r *http.Request) (decimal.Decimal, error) {
	var in listPriceRequest
	if err := decodeJSON(r, &in); err != nil {
		return decimal.Zero, err
	}
	if in.ListPrice == nil {
		return decimal.Zero, fmt.Errorf("%w: list_price is required", costplan.ErrInvalid)
	}
	if in.ListPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: list_price must be >= 0", costplan.ErrInvalid)
	}
	return *in.ListPrice, nil
}

func (s *server) handlePreviewListPrice(w http.ResponseWriter, r *http.Request) {
	price, err := decodeListPrice(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	preview, err := s.svc.PreviewListPrice(r.Context(), chi.URLParam(r, "id"), price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *server) handleConfirmListPrice(w http.ResponseWriter, r *http.Request) {
	price, err := decodeListPrice(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.CalcMarginsFromListPrice(r.Context(), chi.URLParam(r, "id"), price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleProductPrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.svc.UpdateProductListPrice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"list_price": price})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, filename, err := report.PlanWorkbook(view)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := f.Write(w); err != nil {
		s.log.Error("write workbook", zap.Error(err))
	}
}

type warningBody struct {
	Key     string `json:"key"`
	LineID  string `json:"line_id"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string       `json:"error"`
	Warning *warningBody `json:"warning,omitempty"`
}

// writeError maps domain errors to HTTP statuses. A dismissible
// minimum-margin warning answers 409 with the key to acknowledge.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		violation *margin.MinimumMarginViolation
		rejected  *margin.SystemLineDeletionRejected
	)

	switch {
	case errors.As(err, &violation):
		if violation.Dismissible {
			writeJSON(w, http.StatusConflict, errorResponse{
				Error:   violation.Error(),
				Warning: &warningBody{Key: violation.Key, LineID: violation.LineID, Message: violation.Error()},
			})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: violation.Error()})
	case errors.As(err, &rejected),
		errors.Is(err, margin.ErrSystemLineCost),
		errors.Is(err, costplan.ErrSystemType),
		errors.Is(err, costplan.ErrInUse),
		errors.Is(err, costplan.ErrUomCategory):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, costplan.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, costplan.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", costplan.ErrInvalid, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
