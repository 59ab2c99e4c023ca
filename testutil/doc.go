// Package testutil provides test doubles shared by the relay packages: an
// in-memory broker, a manually advanced clock, an in-process SBS-1 feed
// server and canned BaseStation lines.
package testutil
