package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const wavHeaderSize = 44

// WAVHeader is the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// WAVInfo describes a RIFF/WAVE clip
type WAVInfo struct {
	AudioFormat   uint16        `json:"audio_format"`
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	DataOffset    int           `json:"data_offset"`
	DataSize      uint32        `json:"data_size_bytes"`
	Duration      time.Duration `json:"duration"`
}

// EncodeWAV encodes mono PCM-16 samples into a canonical WAV file
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseWAV walks the RIFF chunk list and returns the clip layout.
// Synthesized speech often carries LIST/fact chunks ahead of "data", so chunk
// positions are not assumed to be canonical.
func ParseWAV(data []byte) (*WAVInfo, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	info := &WAVInfo{}
	var haveFmt, haveData bool

	offset := 12
	for offset+8 <= len(data) && !haveData {
		id := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("invalid WAV file: truncated fmt chunk")
			}
			info.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			info.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			info.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			info.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			info.DataOffset = body
			info.DataSize = size
			// Streaming encoders write a placeholder size; clamp to what arrived
			if available := uint32(len(data) - body); size > available {
				info.DataSize = available
			}
			haveData = true
		}

		// Chunks are word aligned
		next := body + int(size) + int(size&1)
		if next <= offset {
			break
		}
		offset = next
	}

	if !haveFmt {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if !haveData {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if info.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}
	if info.Channels == 0 {
		return nil, fmt.Errorf("invalid channel count: 0")
	}

	if frameSize := uint32(info.Channels) * uint32(info.BitsPerSample) / 8; frameSize > 0 {
		frames := info.DataSize / frameSize
		info.Duration = time.Duration(float64(frames) / float64(info.SampleRate) * float64(time.Second))
	}

	return info, nil
}

// ValidateWAV checks that data is a playable PCM or IEEE-float WAV clip
func ValidateWAV(data []byte) error {
	info, err := ParseWAV(data)
	if err != nil {
		return err
	}

	switch info.AudioFormat {
	case 1: // PCM
		switch info.BitsPerSample {
		case 8, 16, 24, 32:
		default:
			return fmt.Errorf("unsupported PCM bit depth: %d", info.BitsPerSample)
		}
	case 3: // IEEE float
		if info.BitsPerSample != 32 && info.BitsPerSample != 64 {
			return fmt.Errorf("unsupported float bit depth: %d", info.BitsPerSample)
		}
	case 0xFFFE: // WAVE_FORMAT_EXTENSIBLE
	default:
		return fmt.Errorf("unsupported audio format: %d", info.AudioFormat)
	}

	if info.DataSize == 0 {
		return fmt.Errorf("no audio data found")
	}

	return nil
}

// WAVDuration returns the playback length of a WAV clip
func WAVDuration(data []byte) (time.Duration, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}
