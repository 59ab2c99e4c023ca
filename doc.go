// Package flightrelay relays an SBS-1 BaseStation aircraft feed into a
// publish/subscribe broker.
//
// # Architecture
//
// One feed reader, one publisher and one stats reporter share a bounded
// queue and a single aircraft table:
//
//	SBS-1 TCP ──▶ feed.Reader ──▶ relay.Queue ──▶ relay.Publisher ──▶ MQTT / NATS
//	                  │                                 │
//	                  ▼                                 ▼
//	            tracker.Table                    relay.Heartbeat ──▶ relay.Watchdog
//	                  │
//	                  └───────────▶ relay.Reporter ──▶ {org}/{project}/stats/*
//
// The reader decodes each line (sbs1), remembers callsigns for 15 minutes
// (tracker) and enqueues a LocationEvent whenever a position and a callsign
// are both known. The queue blocks the reader when full. The publisher
// debounces per aircraft and publishes retained messages to
// {org}/{project}/flights/{callsign}/location with payload "lat,lon".
//
// # Packages
//
//   - sbs1: BaseStation line decoder
//   - tracker: aircraft callsign table with retention
//   - feed: TCP reader with reconnect
//   - relay: queue, debouncer, publisher, reporter, watchdog
//   - mqttclient, natsclient: broker clients
//   - service: wires the pipeline and the broker together
//   - config: defaults, YAML, .env and environment loading
//   - metric, health: Prometheus metrics and /health
//
// # Running
//
//	export MQTT_USERNAME=user MQTT_PASSWORD=secret
//	./bin/flightrelay
//
//	./bin/flightrelay --broker=nats --config relay.yaml
package flightrelay
