package audio

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// cueFrequencies are the pentatonic pitches used for detection cues
var cueFrequencies = []float64{523.25, 659.25, 783.99, 880.0, 987.77}

var cueDurations = []time.Duration{150 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}

// Tone renders a sine tone as a mono 16-bit WAV clip
func Tone(frequency float64, duration time.Duration, sampleRate int, amplitude float64) ([]byte, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("frequency must be positive, got %f", frequency)
	}
	if amplitude <= 0 || amplitude > 1 {
		return nil, fmt.Errorf("amplitude must be in (0, 1], got %f", amplitude)
	}

	numSamples := int(duration.Seconds() * float64(sampleRate))
	samples := make([]int16, numSamples)
	theta := 2 * math.Pi * frequency / float64(sampleRate)
	for i := range samples {
		samples[i] = int16(amplitude * math.MaxInt16 * math.Sin(theta*float64(i)))
	}

	return EncodeWAV(samples, sampleRate)
}

// CuePlayer plays a short random tone when a new object is detected
type CuePlayer struct {
	chain      *Chain
	sampleRate int
	amplitude  float64
}

// NewCuePlayer creates a cue player that routes tones through the chain's cue slot
func NewCuePlayer(chain *Chain, sampleRate int) *CuePlayer {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &CuePlayer{
		chain:      chain,
		sampleRate: sampleRate,
		amplitude:  0.2,
	}
}

// Cue plays one random detection tone
func (p *CuePlayer) Cue() error {
	frequency := cueFrequencies[rand.IntN(len(cueFrequencies))]
	duration := cueDurations[rand.IntN(len(cueDurations))]

	clip, err := Tone(frequency, duration, p.sampleRate, p.amplitude)
	if err != nil {
		return fmt.Errorf("failed to render cue tone: %w", err)
	}

	if _, err := p.chain.Play(SlotCue, clip, string(FormatWAV)); err != nil {
		return fmt.Errorf("failed to play cue tone: %w", err)
	}
	return nil
}
