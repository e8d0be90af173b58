package audio

import (
	"bytes"
	"strings"
)

// Format identifies an audio container
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatAAC     Format = "aac"
	FormatM4A     Format = "m4a"
	FormatOGG     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatCAF     Format = "caf"
)

// DefaultFormatHint is used when neither the payload nor the caller names a format
const DefaultFormatHint = "wav"

// SniffFormat identifies the container from its magic bytes
func SniffFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		// ADTS sync word with layer 00
		return FormatAAC
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0:
		return FormatMP3
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOGG
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("caff")):
		return FormatCAF
	default:
		return FormatUnknown
	}
}

// NormalizeExtension turns a format hint such as ".MP3" or "audio/wav" into a bare extension
func NormalizeExtension(hint string) string {
	ext := strings.ToLower(strings.TrimSpace(hint))
	if i := strings.LastIndexAny(ext, "/."); i >= 0 {
		ext = ext[i+1:]
	}
	switch ext {
	case "":
		return DefaultFormatHint
	case "mpeg":
		return string(FormatMP3)
	case "x-wav", "wave":
		return string(FormatWAV)
	case "mp4":
		return string(FormatM4A)
	}
	return ext
}
