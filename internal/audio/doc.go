// Package audio turns translation audio payloads into sound.
// It decodes transport-encoded (base64/data URI) payloads, opens playable handles
// through an ordered in-memory then file-backed fallback chain, and speaks text
// through an on-device synthesizer when no playable audio is available.
package audio
