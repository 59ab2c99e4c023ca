package sbs1

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/c360/flightrelay/errors"
)

var (
	// ErrNotPositionMessage marks blank lines and lines whose type is not MSG.
	// Callers skip these silently.
	ErrNotPositionMessage = errors.New("not a position message")

	// ErrMissingAircraftID marks MSG lines without an ICAO address.
	ErrMissingAircraftID = errors.New("missing aircraft id")

	// ErrInvalidEncoding marks lines that are not valid UTF-8. Broker topics
	// must be UTF-8, so such a line is never decoded.
	ErrInvalidEncoding = errors.New("line is not valid UTF-8")
)

// Decode parses one line. Only the message type and ICAO address are
// required; everything else degrades to absent.
func Decode(line string) (Record, error) {
	return DecodeIn(line, time.UTC)
}

// DecodeIn is Decode with timestamps interpreted in loc, since the format
// carries no zone.
func DecodeIn(line string, loc *time.Location) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, ErrNotPositionMessage
	}
	if !utf8.ValidString(line) {
		return Record{}, errors.WrapInvalid(ErrInvalidEncoding, "sbs1", "Decode", "check encoding")
	}

	f := fields(strings.Split(line, ","))

	var rec Record
	rec.MessageType = f.strAt(fieldMessageType)
	if rec.MessageType != MessageTypeMSG {
		return Record{}, ErrNotPositionMessage
	}

	rec.ICAO24 = f.strAt(fieldICAO24)
	if rec.ICAO24 == "" {
		return Record{}, errors.WrapInvalid(ErrMissingAircraftID, "sbs1", "Decode",
			"read field "+strconv.Itoa(fieldICAO24))
	}

	if tt := f.intAt(fieldTransmissionType); tt != nil {
		t := TransmissionType(*tt)
		rec.TransmissionType = &t
	}
	rec.SessionID = f.strAt(fieldSessionID)
	rec.AircraftID = f.strAt(fieldAircraftID)
	rec.FlightID = f.strAt(fieldFlightID)
	rec.Generated = f.datetime(fieldGeneratedDate, fieldGeneratedTime, loc)
	rec.Logged = f.datetime(fieldLoggedDate, fieldLoggedTime, loc)
	rec.Callsign = strings.TrimRightFunc(f.strAt(fieldCallsign), unicode.IsSpace)
	rec.Altitude = f.intAt(fieldAltitude)
	rec.GroundSpeed = f.floatAt(fieldGroundSpeed)
	rec.Track = f.floatAt(fieldTrack)
	rec.Latitude = f.coordinate(fieldLatitude, 90)
	rec.Longitude = f.coordinate(fieldLongitude, 180)
	rec.VerticalRate = f.intAt(fieldVerticalRate)
	rec.Squawk = f.intAt(fieldSquawk)
	rec.Alert = f.boolAt(fieldAlert)
	rec.Emergency = f.boolAt(fieldEmergency)
	rec.SPI = f.boolAt(fieldSPI)
	rec.OnGround = f.boolAt(fieldOnGround)

	return rec, nil
}

// fields reads positional values. Any index past the end reads as empty.
type fields []string

func (f fields) strAt(i int) string {
	if i >= len(f) {
		return ""
	}
	return f[i]
}

func (f fields) intAt(i int) *int {
	s := strings.TrimSpace(f.strAt(i))
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func (f fields) floatAt(i int) *float64 {
	s := strings.TrimSpace(f.strAt(i))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (f fields) coordinate(i int, limit float64) *float64 {
	v := f.floatAt(i)
	if v == nil || math.Abs(*v) > limit {
		return nil
	}
	return v
}

func (f fields) boolAt(i int) *bool {
	v := f.intAt(i)
	if v == nil {
		return nil
	}
	b := *v != 0
	return &b
}

func (f fields) datetime(dateIdx, timeIdx int, loc *time.Location) *time.Time {
	d, t := f.strAt(dateIdx), f.strAt(timeIdx)
	if d == "" || t == "" {
		return nil
	}
	ts, err := dateparse.ParseIn(d+" "+t, loc)
	if err != nil {
		return nil
	}
	return &ts
}
