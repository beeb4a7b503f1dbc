// Package transport owns the single serial handle of a device connection.
//
// Ownership boundary:
// - opening and enumerating serial ports
// - the shared lock between outbound requests and the inbound read loop
// - the steady-state read loop feeding the frame decoder
//
// No other package holds a second handle to the port.
package transport
