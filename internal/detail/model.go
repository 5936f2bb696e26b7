package detail

import "time"

// StatusCompleted is the only status this pipeline writes; the column is
// free text for other producers.
const StatusCompleted = "completed"

// AppointmentDetail is the country-local audit row, one per successfully
// processed queue message. It is keyed independently of the global
// appointment record and never updated after creation.
type AppointmentDetail struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	InsuredID  string    `gorm:"type:varchar(5);not null;index" json:"insuredId"`
	ScheduleID int64     `gorm:"not null" json:"scheduleId"`
	CountryISO string    `gorm:"type:char(2);not null" json:"countryISO"`
	Status     string    `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (AppointmentDetail) TableName() string {
	return "appointment_details"
}
