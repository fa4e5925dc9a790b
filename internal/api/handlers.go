package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weili-projects/reservation-api/internal/appointment"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseUUIDParam(w http.ResponseWriter, raw, code, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, code, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createAvailabilityHandler(svc ReservationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}

		providerID, ok := parseUUIDParam(w, req.ProviderID, "invalid_provider_id", "provider_id")
		if !ok {
			return
		}

		ranges := make([]appointment.TimeRange, 0, len(req.Ranges))
		for _, rr := range req.Ranges {
			ranges = append(ranges, appointment.TimeRange{Start: rr.StartTime, End: rr.EndTime})
		}

		slots, err := svc.CreateAvailability(r.Context(), providerID, ranges)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		status := http.StatusCreated
		if len(slots) == 0 {
			status = http.StatusOK
		}
		writeJSON(w, status, toCreatedSlots(slots))
	}
}

func listAvailabilityHandler(svc ReservationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "invalid_provider_id", "id")
		if !ok {
			return
		}

		slots, err := svc.ListAvailability(r.Context(), providerID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailableSlots(slots))
	}
}

func createReservationHandler(svc ReservationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateReservationRequest
		if !decodeBody(w, r, &req) {
			return
		}

		slotID, ok := parseUUIDParam(w, req.SlotID, "invalid_slot_id", "slot_id")
		if !ok {
			return
		}
		clientID, ok := parseUUIDParam(w, req.ClientID, "invalid_client_id", "client_id")
		if !ok {
			return
		}

		detail, err := svc.MakeReservation(r.Context(), slotID, clientID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservation(detail))
	}
}

func confirmReservationHandler(svc ReservationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "invalid_appointment_id", "id")
		if !ok {
			return
		}

		detail, err := svc.ConfirmReservation(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservation(detail))
	}
}

func getReservationHandler(svc ReservationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "invalid_appointment_id", "id")
		if !ok {
			return
		}

		detail, err := svc.GetReservation(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservation(detail))
	}
}
