package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	InsuredID  string `json:"insuredId" validate:"required,len=5,number"`
	ScheduleID int64  `json:"scheduleId" validate:"required,gt=0"`
	CountryISO string `json:"countryISO" validate:"omitempty,oneof=PE CL"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	InsuredID  string    `json:"insuredId"`
	ScheduleID int64     `json:"scheduleId"`
	CountryISO string    `json:"countryISO"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
