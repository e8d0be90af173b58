// Package protocol implements the binary anchor-event packet format.
// It handles header parsing and validation, the fixed anchor payload
// (identifier, pose, extent) and the trailing UTF-8 object name.
package protocol
