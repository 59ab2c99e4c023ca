// Package config loads the relay configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// a .env file, then the process environment. Command-line flags are applied
// last by the caller.
//
// Example YAML file accepted by Loader.Load:
//
//	feed:
//	  host: localhost
//	  port: 5002
//	broker:
//	  kind: nats
//	  nats:
//	    url: nats://localhost:4222
//	    stream: FLIGHTRELAY
//	relay:
//	  debounce_interval: 5s
//	  stats_interval: 30s
//
// Environment keys such as SBS1_HOST, BROKER, MQTT_BROKER and
// DEBOUNCE_INTERVAL override file values.
package config
