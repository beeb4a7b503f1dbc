// Package surface owns the device connection lifecycle.
//
// Lifecycle order:
// - open -> flush -> discover -> listen -> request preferences
//
// - a port change closes the active session before the next one opens.
//
// - discovery failure leaves an empty, usable layout.
//
// The Service is the only holder of the transport link. Callers reach the
// device through Service.Submit, Refresh and Push.
package surface
