package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/oszuidwest/zwfm-noisemeter/internal/meter"
	"github.com/oszuidwest/zwfm-noisemeter/internal/report"
	"github.com/oszuidwest/zwfm-noisemeter/internal/server"
	"github.com/oszuidwest/zwfm-noisemeter/internal/validation"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	for part := range strings.SplitSeq(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

// handleAPIStatus returns the status of every profile.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildStatus())
}

// handleAPIReport returns the session report for a profile.
// GET /api/report?profile=main
func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	req := server.ProfileRequest{Profile: r.URL.Query().Get("profile")}
	if err := validation.Struct(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.commands.Report(req.Profile)
	switch {
	case errors.Is(err, meter.ErrUnknownProfile):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, report.ErrNoData):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, rep)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(rep.Text())); err != nil {
		slog.Error("failed to write report", "error", err)
	}
}

// handleAPIEvents returns a page of the event log.
// GET /api/events?limit=50&offset=0&filter=loud
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := server.EventsRequest{Filter: q.Get("filter")}
	var err error
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if req.Offset, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}
	if err := validation.Struct(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, err)
		return
	}

	page, err := s.commands.Events(&req)
	switch {
	case errors.Is(err, server.ErrEventLogDisabled):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, server.Devices())
}
