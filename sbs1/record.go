// Package sbs1 decodes BaseStation (SBS-1) text messages, the comma
// separated format dump1090 and most ADS-B receivers serve on port 30003.
//
// A line has 22 positional fields. Only MSG lines are decoded; every other
// field is parsed independently and left absent when empty or malformed.
package sbs1

import (
	"time"
)

// TransmissionType identifies the Mode S downlink a MSG line was built from.
type TransmissionType int

const (
	ESIdentAndCategory TransmissionType = 1
	ESSurfacePos       TransmissionType = 2
	ESAirbornePos      TransmissionType = 3
	ESAirborneVel      TransmissionType = 4
	SurveillanceAlt    TransmissionType = 5
	SurveillanceID     TransmissionType = 6
	AirToAir           TransmissionType = 7
	AllCallReply       TransmissionType = 8
)

// Field positions within a line.
const (
	fieldMessageType = iota
	fieldTransmissionType
	fieldSessionID
	fieldAircraftID
	fieldICAO24
	fieldFlightID
	fieldGeneratedDate
	fieldGeneratedTime
	fieldLoggedDate
	fieldLoggedTime
	fieldCallsign
	fieldAltitude
	fieldGroundSpeed
	fieldTrack
	fieldLatitude
	fieldLongitude
	fieldVerticalRate
	fieldSquawk
	fieldAlert
	fieldEmergency
	fieldSPI
	fieldOnGround

	// FieldCount is the number of fields in a complete line.
	FieldCount
)

// MessageTypeMSG is the only message type carrying aircraft data.
const MessageTypeMSG = "MSG"

// Record is a decoded MSG line. Pointer fields are nil when the field was
// empty, malformed or beyond the end of the line.
type Record struct {
	MessageType      string
	TransmissionType *TransmissionType
	SessionID        string
	AircraftID       string
	ICAO24           string
	FlightID         string
	Generated        *time.Time
	Logged           *time.Time
	Callsign         string // trailing whitespace removed, empty when absent
	Altitude         *int
	GroundSpeed      *float64
	Track            *float64
	Latitude         *float64
	Longitude        *float64
	VerticalRate     *int
	Squawk           *int
	Alert            *bool
	Emergency        *bool
	SPI              *bool
	OnGround         *bool
}

// Position returns the coordinates when both are present.
func (r Record) Position() (lat, lon float64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// HasCallsign reports whether the line carried a callsign.
func (r Record) HasCallsign() bool {
	return r.Callsign != ""
}
