package appointment

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

type CountryISO string

const (
	CountryPE CountryISO = "PE"
	CountryCL CountryISO = "CL"
)

// Valid reports whether the country is one the pipeline routes for.
func (c CountryISO) Valid() bool {
	return c == CountryPE || c == CountryCL
}

var insuredIDPattern = regexp.MustCompile(`^\d{5}$`)

// ValidInsuredID reports whether s is a well-formed insured party identifier:
// exactly five digits, leading zeros allowed.
func ValidInsuredID(s string) bool {
	return insuredIDPattern.MatchString(s)
}

// Appointment is the global scheduling record. Its JSON shape is also the
// payload published on the notification bus.
type Appointment struct {
	ID         uuid.UUID  `json:"id"`
	InsuredID  string     `json:"insuredId"`
	ScheduleID int64      `json:"scheduleId"`
	Country    CountryISO `json:"countryISO"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewAppointment carries intake input after country resolution.
type NewAppointment struct {
	InsuredID  string
	ScheduleID int64
	Country    CountryISO
}
