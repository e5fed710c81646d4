package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/records"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, FailureResponse{OK: false, Error: msg})
}

// --- HTTP handlers ---

// handleRoot godoc
// @Summary Liveness probe
// @Produce plain
// @Success 200 {string} string "ok"
// @Router / [get]
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleHealthz godoc
// @Summary Health check
// @Produce plain
// @Success 200 {string} string "OK"
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// handleSubmit godoc
// @Summary Submit a record with an optional base64 image
// @Accept json
// @Produce json
// @Param body body SubmitRequest true "record and image"
// @Success 201 {object} SubmitResponse
// @Failure 400 {object} FailureResponse
// @Failure 401 {object} FailureResponse
// @Router /requests [post]
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.logger.Warn("decoding submit body", logging.Field{Key: "error", Value: err.Error()})
		writeFailure(w, http.StatusBadRequest, "invalid_json: "+err.Error())
		return
	}

	// Non-object payloads are accepted as an empty record.
	var body SubmitRequest
	if obj, ok := raw.(map[string]any); ok {
		if rec, ok := obj["record"].(map[string]any); ok {
			body.Record = rec
		}
		if img, ok := obj["image_b64"].(string); ok {
			body.ImageB64 = img
		}
	}

	res, err := s.records.Submit(r.Context(), body.Record, body.ImageB64)
	if err != nil {
		if errors.Is(err, records.ErrInvalidBase64) {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("storing record", logging.Field{Key: "error", Value: err.Error()})
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("stored record",
		logging.Field{Key: "id", Value: res.Entry.ID},
		logging.Field{Key: "saved", Value: res.Saved})
	writeJSON(w, http.StatusCreated, SubmitResponse{OK: true, ID: res.Entry.ClientID, Saved: res.Saved})
}

// handleSubmitMultipart godoc
// @Summary Submit a record as multipart/form-data
// @Accept mpfd
// @Produce json
// @Param record_json formData string false "record as JSON"
// @Param image formData file false "image"
// @Success 201 {object} MultipartResponse
// @Failure 400 {object} FailureResponse
// @Failure 401 {object} FailureResponse
// @Router /requests-mp [post]
func (s *Server) handleSubmitMultipart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxContentLength); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var image io.Reader
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image = file
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.records.SubmitMultipart(r.Context(), r.FormValue("record_json"), image)
	if err != nil {
		s.logger.Warn("storing multipart record", logging.Field{Key: "error", Value: err.Error()})
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("stored multipart record",
		logging.Field{Key: "id", Value: res.Entry.ID},
		logging.Field{Key: "saved", Value: res.Saved})
	writeJSON(w, http.StatusCreated, MultipartResponse{OK: true, Saved: res.Saved})
}

// handleListRecords godoc
// @Summary List stored records, oldest first
// @Produce json
// @Param limit query int false "only the newest N"
// @Success 200 {array} records.Entry
// @Failure 401 {object} FailureResponse
// @Router /requests [get]
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	entries, err := s.records.List(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing records", logging.Field{Key: "error", Value: err.Error()})
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// WebSockets

func (s *Server) handleRecordsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeFailure(w, http.StatusNotFound, "live feed disabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// The read loop only exists to notice the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
