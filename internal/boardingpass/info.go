package boardingpass

import (
	"encoding/json"
	"time"
)

// Unknown is the sentinel for a soft field that could not be read.
const Unknown = "Unknown"

// AlarmOffset is how long before departure the alarm fires.
const AlarmOffset = 2 * time.Hour

// FlightInfo is the record read from one boarding pass.
type FlightInfo struct {
	FlightNumber string    // Matched text such as "NH 123", or Unknown.
	Destination  string    // Gazetteer entry, or Unknown.
	Departure    time.Time // Local calendar time, seconds always zero.
	Gate         string    // Matched text such as "GATE 42"; empty when absent.
}

// AlarmTime is Departure minus AlarmOffset. It is not clamped, so it may
// already be in the past.
func (f FlightInfo) AlarmTime() time.Time {
	return f.Departure.Add(-AlarmOffset)
}

// HasGate reports whether a gate was found.
func (f FlightInfo) HasGate() bool {
	return f.Gate != ""
}

// DisplayText is the short alarm label, e.g. "NH 123 HND行き".
func (f FlightInfo) DisplayText() string {
	return f.FlightNumber + " " + f.Destination + "行き"
}

// MissingFields lists the fields that fell back to a sentinel or were absent.
func (f FlightInfo) MissingFields() []string {
	var missing []string
	if f.FlightNumber == Unknown {
		missing = append(missing, "flight_number")
	}
	if f.Destination == Unknown {
		missing = append(missing, "destination")
	}
	if f.Gate == "" {
		missing = append(missing, "gate")
	}
	return missing
}

type flightInfoJSON struct {
	FlightNumber string    `json:"flight_number"`
	Destination  string    `json:"destination"`
	Departure    time.Time `json:"departure"`
	AlarmTime    time.Time `json:"alarm_time"`
	Gate         string    `json:"gate,omitempty"`
}

// MarshalJSON includes the derived alarm time.
func (f FlightInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(flightInfoJSON{
		FlightNumber: f.FlightNumber,
		Destination:  f.Destination,
		Departure:    f.Departure,
		AlarmTime:    f.AlarmTime(),
		Gate:         f.Gate,
	})
}

// UnmarshalJSON reads the stored form back; alarm_time is ignored and recomputed.
func (f *FlightInfo) UnmarshalJSON(data []byte) error {
	var raw flightInfoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = FlightInfo{
		FlightNumber: raw.FlightNumber,
		Destination:  raw.Destination,
		Departure:    raw.Departure,
		Gate:         raw.Gate,
	}
	return nil
}

// Outcome is the tagged result of one extraction: either a record or not found.
// There is no partial outcome.
type Outcome struct {
	Found bool
	Info  FlightInfo // Zero unless Found.
}

// NotFound is the outcome when no departure time could be read.
var NotFound = Outcome{}

// MarshalJSON writes {"found":false} or the record fields with "found":true.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Found {
		return []byte(`{"found":false}`), nil
	}
	return json.Marshal(struct {
		Found bool `json:"found"`
		flightInfoJSON
	}{
		Found: true,
		flightInfoJSON: flightInfoJSON{
			FlightNumber: o.Info.FlightNumber,
			Destination:  o.Info.Destination,
			Departure:    o.Info.Departure,
			AlarmTime:    o.Info.AlarmTime(),
			Gate:         o.Info.Gate,
		},
	})
}

// UnmarshalJSON reads either shape written by MarshalJSON.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var head struct {
		Found bool `json:"found"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if !head.Found {
		*o = NotFound
		return nil
	}

	var info FlightInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return err
	}
	*o = Outcome{Found: true, Info: info}
	return nil
}
