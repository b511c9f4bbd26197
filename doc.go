// Package scriptwire runs scripts on a device under the control of a
// host, over a line-oriented byte stream.
//
// A loader (package 'loader', daemon in `cmd/scriptwired`) reads
// commands like
//
//   TOKEN|eval|SOURCE
//   TOKEN|load|NAME|&LEN
//   <LEN bytes>
//
// and runs them with an embedded engine (package 'engine').  Output
// is tagged with the token of the command that caused it (package
// 'mux'), so a host (package 'host', CLI in `cmd/scriptwire`) can
// route replies.  The host can also bridge scripts to MQTT and relay
// commands from other tools.
package scriptwire
