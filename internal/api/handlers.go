package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read request body")
			return
		}

		req, err := decodeCreateRequest(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		country := appointment.CountryISO(req.CountryISO)
		if country == "" {
			// Caller hint via query parameter, falling back to PE.
			if r.URL.Query().Get("country") == string(appointment.CountryCL) {
				country = appointment.CountryCL
			} else {
				country = appointment.CountryPE
			}
		}

		appt, err := svc.Create(r.Context(), appointment.NewAppointment{
			InsuredID:  req.InsuredID,
			ScheduleID: req.ScheduleID,
			Country:    country,
		})
		if err != nil {
			handleCreateError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insuredID := chi.URLParam(r, "insuredId")

		appts, err := svc.ListByInsured(r.Context(), insuredID)
		if err != nil {
			if errors.Is(err, appointment.ErrInvalidInsuredID) {
				writeError(w, http.StatusBadRequest, "invalid_insured_id", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// decodeCreateRequest accepts the request body as a JSON object, as a
// JSON-encoded string containing the object, or as a serialized byte buffer
// ({"type":"Buffer","data":[...]}) the way proxying gateways sometimes
// deliver it.
func decodeCreateRequest(body []byte) (*CreateAppointmentRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		trimmed = []byte(inner)
	}

	var buf struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &buf); err == nil && buf.Type == "Buffer" && len(buf.Data) > 0 {
		raw := make([]byte, len(buf.Data))
		for i, b := range buf.Data {
			raw[i] = byte(b)
		}
		trimmed = raw
	}

	var req CreateAppointmentRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}

	return &req, nil
}

func handleCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidInsuredID):
		writeError(w, http.StatusBadRequest, "invalid_insured_id", err.Error())
	case errors.Is(err, appointment.ErrInvalidScheduleID):
		writeError(w, http.StatusBadRequest, "invalid_schedule_id", err.Error())
	case errors.Is(err, appointment.ErrInvalidCountry):
		writeError(w, http.StatusBadRequest, "invalid_country", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		InsuredID:  a.InsuredID,
		ScheduleID: a.ScheduleID,
		CountryISO: string(a.Country),
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
