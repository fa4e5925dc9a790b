package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/weili-projects/reservation-api/internal/appointment"
)

type TimeRangeRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type CreateAvailabilityRequest struct {
	ProviderID string             `json:"provider_id"`
	Ranges     []TimeRangeRequest `json:"ranges"`
}

type CreateReservationRequest struct {
	SlotID   string `json:"slot_id"`
	ClientID string `json:"client_id"`
}

type CreatedSlotResponse struct {
	SlotID     uuid.UUID `json:"slot_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type AvailableSlotResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type ReservationResponse struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	SlotID          uuid.UUID `json:"slot_id"`
	AppointmentTime time.Time `json:"appointment_time"`
	ClientID        uuid.UUID `json:"client_id"`
	ClientName      string    `json:"client_name"`
	Confirmed       bool      `json:"confirmed"`
	ReservationTime time.Time `json:"reservation_time"`
	ExpirationTime  time.Time `json:"expiration_time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toCreatedSlots(slots []appointment.Slot) []CreatedSlotResponse {
	out := make([]CreatedSlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, CreatedSlotResponse{
			SlotID:     s.ID,
			ProviderID: s.ProviderID,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
		})
	}
	return out
}

func toAvailableSlots(slots []appointment.Slot) []AvailableSlotResponse {
	out := make([]AvailableSlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, AvailableSlotResponse{
			SlotID:    s.ID,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	return out
}

func toReservation(d *appointment.AppointmentDetail) ReservationResponse {
	return ReservationResponse{
		AppointmentID:   d.ID,
		SlotID:          d.SlotID,
		AppointmentTime: d.Slot.StartTime,
		ClientID:        d.ClientID,
		ClientName:      d.Client.Name,
		Confirmed:       d.Confirmed,
		ReservationTime: d.ReservationTime,
		ExpirationTime:  d.ExpirationTime(),
	}
}
