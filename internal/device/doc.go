// Package device owns the discovered control-surface model.
//
// Ownership boundary:
// - layout discovery against a transport link
//
// - the Layout -> Commander -> Interface tree
//
// - routing of inbound command frames into interface parameter values
//
// - building outbound preference payloads
//
// A Layout is built once per connection and discarded on reconnect.
// Commanders and interfaces never change shape after discovery; only
// interface parameter values are replaced.
package device
