package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// InputPlaceholder is replaced in player command templates by the clip source
// ("-" for stdin or the temporary file path)
const InputPlaceholder = "{input}"

// assumedBitrate estimates duration for compressed clips that are not parsed
const assumedBitrate = 128_000

// SilentBackend is a headless backend. It accepts WAV buffers in memory and any
// non-empty file, and reports playback for the clip duration without producing sound.
type SilentBackend struct{}

// OpenBytes accepts only buffers that parse as WAV
func (SilentBackend) OpenBytes(data []byte) (Handle, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, fmt.Errorf("in-memory playback requires WAV: %w", err)
	}
	d, err := WAVDuration(data)
	if err != nil {
		return nil, err
	}
	return &timedHandle{duration: d}, nil
}

// OpenFile accepts any non-empty clip on disk
func (SilentBackend) OpenFile(path string) (Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("clip %s is empty", filepath.Base(path))
	}

	if d, err := WAVDuration(data); err == nil {
		return &timedHandle{duration: d}, nil
	}
	return &timedHandle{duration: estimateDuration(len(data))}, nil
}

func estimateDuration(size int) time.Duration {
	return time.Duration(float64(size*8) / assumedBitrate * float64(time.Second))
}

// timedHandle plays for a fixed duration
type timedHandle struct {
	duration time.Duration
	timer    *time.Timer
	playing  bool
	mu       sync.Mutex
}

func (h *timedHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	h.playing = true
	h.timer = time.AfterFunc(h.duration, func() {
		h.mu.Lock()
		h.playing = false
		h.mu.Unlock()
	})
	return nil
}

func (h *timedHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.playing = false
}

func (h *timedHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// CommandBackend plays clips through an external player such as ffplay or aplay
type CommandBackend struct {
	argv []string
}

// NewCommandBackend creates a backend from an argv template. When the template has
// no {input} placeholder the source is appended as the last argument.
func NewCommandBackend(argv []string) (*CommandBackend, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("player command cannot be empty")
	}

	tmpl := append([]string(nil), argv...)
	hasInput := false
	for _, a := range tmpl {
		if strings.Contains(a, InputPlaceholder) {
			hasInput = true
			break
		}
	}
	if !hasInput {
		tmpl = append(tmpl, InputPlaceholder)
	}

	return &CommandBackend{argv: tmpl}, nil
}

// OpenBytes streams the buffer to the player's stdin. The container must be
// recognizable from its magic bytes since the player gets no file extension.
func (b *CommandBackend) OpenBytes(data []byte) (Handle, error) {
	if f := SniffFormat(data); f == FormatUnknown {
		return nil, errors.New("unrecognized audio container")
	}
	if _, err := exec.LookPath(b.argv[0]); err != nil {
		return nil, fmt.Errorf("player unavailable: %w", err)
	}
	return &processHandle{argv: b.expand("-"), stdin: data}, nil
}

// OpenFile passes the clip path to the player
func (b *CommandBackend) OpenFile(path string) (Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat clip: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("clip %s is empty", filepath.Base(path))
	}
	if _, err := exec.LookPath(b.argv[0]); err != nil {
		return nil, fmt.Errorf("player unavailable: %w", err)
	}
	return &processHandle{argv: b.expand(path)}, nil
}

func (b *CommandBackend) expand(input string) []string {
	return expandTemplate(b.argv, InputPlaceholder, input)
}

func expandTemplate(tmpl []string, placeholder, value string) []string {
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		out[i] = strings.ReplaceAll(a, placeholder, value)
	}
	return out
}

// processHandle runs one player process per Play call
type processHandle struct {
	argv  []string
	stdin []byte

	cmd     *exec.Cmd
	playing bool
	mu      sync.Mutex
}

func (h *processHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()

	cmd := exec.Command(h.argv[0], h.argv[1:]...)
	if h.stdin != nil {
		cmd.Stdin = bytes.NewReader(h.stdin)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	h.cmd = cmd
	h.playing = true

	go func() {
		_ = cmd.Wait()
		h.mu.Lock()
		if h.cmd == cmd {
			h.playing = false
		}
		h.mu.Unlock()
	}()

	return nil
}

func (h *processHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *processHandle) stopLocked() {
	if h.cmd == nil || !h.playing {
		return
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	h.playing = false
}

func (h *processHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}
