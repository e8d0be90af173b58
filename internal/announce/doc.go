// Package announce coordinates per-object announcements. Each distinct object
// name triggers at most one translation lookup and playback cycle unless the
// caller forces it; audio degrades from the translation payload to the fact
// payload to on-device speech.
package announce
