package restserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chrissnell/laistats/internal/log"
	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/internal/views"
	"github.com/chrissnell/laistats/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GetRuns lists stored runs, newest first
func (h *Handlers) GetRuns(w http.ResponseWriter, req *http.Request) {
	runs, err := h.controller.reader.ListRuns(req.Context())
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, runs)
}

// GetRecords returns the record table of a run. Query parameters: run
// (default: latest), landuse, elevation_class, from and to (YYYY-MM-DD,
// inclusive). /records/{landuse} is shorthand for ?landuse=.
func (h *Handlers) GetRecords(w http.ResponseWriter, req *http.Request) {
	q, err := parseRecordQuery(req)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.resolveRun(req, &q); err != nil {
		h.fail(w, req, err)
		return
	}

	tbl, err := h.controller.reader.Records(req.Context(), q)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, RecordsResponse{
		RunID:   q.RunID,
		Records: transformRecords(tbl),
	})
}

// GetCharacteristicYear averages a run's records across years per
// month-day. Accepts the same filters as GetRecords.
func (h *Handlers) GetCharacteristicYear(w http.ResponseWriter, req *http.Request) {
	q, err := parseRecordQuery(req)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.resolveRun(req, &q); err != nil {
		h.fail(w, req, err)
		return
	}

	tbl, err := h.controller.reader.Records(req.Context(), q)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, CharacteristicYearResponse{
		RunID: q.RunID,
		Days:  transformDays(views.CharacteristicYear(tbl)),
	})
}

// GetAdjustments returns the adjustment table of a run; "latest" selects
// the newest run.
func (h *Handlers) GetAdjustments(w http.ResponseWriter, req *http.Request) {
	runID := mux.Vars(req)["run"]
	if runID == "latest" {
		run, err := h.controller.reader.LatestRun(req.Context())
		if err != nil {
			h.fail(w, req, err)
			return
		}
		runID = run.ID
	}

	rows, err := h.controller.reader.AdjustmentRows(req.Context(), runID)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, AdjustmentsResponse{
		RunID: runID,
		Rows:  transformRows(rows),
	})
}

// parseRecordQuery builds a storage query from path and query parameters
func parseRecordQuery(req *http.Request) (storage.RecordQuery, error) {
	params := req.URL.Query()
	q := storage.RecordQuery{
		RunID:          params.Get("run"),
		ElevationClass: params.Get("elevation_class"),
	}

	landuse := mux.Vars(req)["landuse"]
	if landuse == "" {
		landuse = params.Get("landuse")
	}
	if landuse != "" {
		lu, err := strconv.Atoi(landuse)
		if err != nil {
			return q, fmt.Errorf("invalid landuse %q", landuse)
		}
		q.Landuse = &lu
	}

	var err error
	if q.From, err = parseDateParam(params.Get("from")); err != nil {
		return q, fmt.Errorf("invalid from: %w", err)
	}
	if q.To, err = parseDateParam(params.Get("to")); err != nil {
		return q, fmt.Errorf("invalid to: %w", err)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errors.New("to is before from")
	}
	return q, nil
}

// resolveRun fills in the newest run when the query names none
func (h *Handlers) resolveRun(req *http.Request, q *storage.RecordQuery) error {
	if q.RunID != "" {
		return nil
	}
	run, err := h.controller.reader.LatestRun(req.Context())
	if err != nil {
		return err
	}
	q.RunID = run.ID
	return nil
}

func parseDateParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(records.DateLayout, s)
}

// fail maps a store error onto a response status
func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		h.formatter.WriteError(w, req, http.StatusNotFound, "not found")
		return
	}
	log.Errorf("error serving %s: %v", req.URL.Path, err)
	h.formatter.WriteError(w, req, http.StatusInternalServerError, "error reading stored results")
}
