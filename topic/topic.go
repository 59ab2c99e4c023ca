// Package topic builds broker topic names and payloads for the relay.
package topic

import (
	"strconv"
	"strings"
)

// Stat names published under {namespace}/stats/.
const (
	StatFlightsSeen       = "flights_seen_in_last_15m"
	StatQueueSize         = "queue_size"
	StatMessagesPerMinute = "messages_per_minute"
)

var sanitizer = strings.NewReplacer(
	"+", "-",
	"#", "-",
	" ", "-",
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"Ä", "Ae",
	"Ö", "Oe",
	"Ü", "Ue",
	"ß", "ss",
)

// Sanitize makes a callsign safe as a single topic level. MQTT wildcards and
// spaces become dashes and German umlauts are transliterated. All other
// characters pass through.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// Namespace joins the organisation and project into the topic prefix.
func Namespace(org, project string) string {
	return org + "/" + project
}

// Location returns {namespace}/flights/{callsign}/location with the
// callsign sanitized.
func Location(namespace, callsign string) string {
	return namespace + "/flights/" + Sanitize(callsign) + "/location"
}

// Stat returns {namespace}/stats/{name}.
func Stat(namespace, name string) string {
	return namespace + "/stats/" + name
}

// FormatPosition renders "lat,lon" using the shortest decimal form of each.
func FormatPosition(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// FormatCount renders a stats value.
func FormatCount(n int) string {
	return strconv.Itoa(n)
}
