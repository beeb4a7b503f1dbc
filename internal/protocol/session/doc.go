// Package session owns serial link timing for one device connection.
//
// Ownership boundary:
// - port mode and read timeout defaults
// - steady-state idle poll interval
// - layout discovery grace period
// - reconnect backoff schedule
//
// Request submission never retries; reconnect policy belongs to the caller.
package session
