// Package protocol owns the control-surface wire contract.
//
// Ownership boundary:
// - reserved command ids and the frame start marker
// - protocol-wide error kinds
//
// Subpackages:
// - frame: command envelope encode and the streaming decoder
// - schema: interface parameter schemas and the parameter codec
// - session: link timing and reconnect backoff
package protocol
