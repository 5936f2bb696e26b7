package bus

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnparsableMessage    = errors.New("message matched no known envelope shape")
	ErrMissingAppointmentID = errors.New("cannot find appointment id in message")
)

// AppointmentMessage is the payload a country queue message decodes to.
type AppointmentMessage struct {
	ID         string `json:"id"`
	InsuredID  string `json:"insuredId"`
	ScheduleID int64  `json:"scheduleId"`
	CountryISO string `json:"countryISO"`
}

func (m *AppointmentMessage) complete() bool {
	return m.ID != "" && m.InsuredID != "" && m.CountryISO != ""
}

// Queue bodies arrive in a handful of shapes depending on which hop produced
// them: the payload itself, the payload wrapped in a Message field by the
// bus, or the whole thing encoded once more as a JSON string. Each unwrapper
// either yields candidate payload bytes or falls through to the next.
var unwrappers = []func([]byte) ([]byte, bool){
	unwrapMessageField,
	unwrapJSONString,
	unwrapIdentity,
}

func unwrapMessageField(body []byte) ([]byte, bool) {
	var wrap struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(body, &wrap); err != nil || wrap.Message == "" {
		return nil, false
	}
	return []byte(wrap.Message), true
}

func unwrapJSONString(body []byte) ([]byte, bool) {
	var inner string
	if err := json.Unmarshal(body, &inner); err != nil || inner == "" {
		return nil, false
	}
	return []byte(inner), true
}

func unwrapIdentity(body []byte) ([]byte, bool) {
	return body, true
}

// DecodeAppointmentMessage tries each envelope shape in priority order and
// returns the first decode that yields a complete payload. Exhausting every
// shape is a parse failure.
func DecodeAppointmentMessage(body []byte) (*AppointmentMessage, error) {
	for _, unwrap := range unwrappers {
		payload, ok := unwrap(body)
		if !ok {
			continue
		}

		// A second Message level shows up when the producer wrapped an
		// already-wrapped body; peel it before decoding.
		if inner, ok := unwrapMessageField(payload); ok {
			payload = inner
		}

		var msg AppointmentMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.complete() {
			return &msg, nil
		}
	}

	return nil, ErrUnparsableMessage
}

type completionBody struct {
	ID     string          `json:"id"`
	Detail *completionBody `json:"detail"`
}

// ExtractAppointmentID pulls the appointment identifier out of a completion
// event body. The id lives at detail.id, detail.detail.id or top-level id,
// checked in that order; the body itself may be wrapped once in a Message
// field.
func ExtractAppointmentID(body []byte) (string, error) {
	payload := body
	if inner, ok := unwrapMessageField(body); ok {
		payload = inner
	}

	var b completionBody
	if err := json.Unmarshal(payload, &b); err != nil {
		return "", fmt.Errorf("decode completion event: %w", err)
	}

	switch {
	case b.Detail != nil && b.Detail.ID != "":
		return b.Detail.ID, nil
	case b.Detail != nil && b.Detail.Detail != nil && b.Detail.Detail.ID != "":
		return b.Detail.Detail.ID, nil
	case b.ID != "":
		return b.ID, nil
	}

	return "", ErrMissingAppointmentID
}
