package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrPlaybackInit is matched by every error returned when no stage could produce a handle
var ErrPlaybackInit = errors.New("playback initialization failed")

// Handle is a playable clip. Play starts playback and returns without waiting for it to finish.
type Handle interface {
	Play() error
	Stop()
	Playing() bool
}

// Backend constructs handles from an in-memory buffer or from a file on disk
type Backend interface {
	OpenBytes(data []byte) (Handle, error)
	OpenFile(path string) (Handle, error)
}

// Slot names an output lane. Translation and fact audio never overlap; cues are independent.
type Slot int

const (
	SlotTranslation Slot = iota
	SlotFact
	SlotCue
)

func (s Slot) String() string {
	switch s {
	case SlotTranslation:
		return "translation"
	case SlotFact:
		return "fact"
	case SlotCue:
		return "cue"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ParseSlot converts a slot name back to a Slot
func ParseSlot(name string) (Slot, error) {
	switch strings.ToLower(name) {
	case "translation", "":
		return SlotTranslation, nil
	case "fact":
		return SlotFact, nil
	case "cue":
		return SlotCue, nil
	default:
		return 0, fmt.Errorf("unknown playback slot %q", name)
	}
}

// StageError records why one stage of the chain failed
type StageError struct {
	Stage string
	Err   error
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// PlaybackError is returned when every stage of the chain failed
type PlaybackError struct {
	Stages []StageError
}

func (e *PlaybackError) Error() string {
	parts := make([]string, 0, len(e.Stages))
	for _, s := range e.Stages {
		parts = append(parts, s.Error())
	}
	return fmt.Sprintf("%s (%s)", ErrPlaybackInit.Error(), strings.Join(parts, "; "))
}

func (e *PlaybackError) Is(target error) bool {
	return target == ErrPlaybackInit
}

func (e *PlaybackError) Unwrap() []error {
	errs := make([]error, 0, len(e.Stages))
	for _, s := range e.Stages {
		errs = append(errs, s.Err)
	}
	return errs
}

// ChainStats counts which stage produced each handle
type ChainStats struct {
	MemoryOpens uint64 `json:"memory_opens"`
	FileOpens   uint64 `json:"file_opens"`
	Failures    uint64 `json:"failures"`
	TempFiles   int    `json:"temp_files"`
}

// clip is an opened handle plus the temporary file backing it, if any
type clip struct {
	handle   Handle
	tempPath string
}

// Chain opens clips through an ordered list of stages and owns the active handle per slot
type Chain struct {
	backend Backend
	tempDir string
	logger  *slog.Logger

	active map[Slot]*clip

	memoryOpens uint64
	fileOpens   uint64
	failures    uint64

	mu sync.Mutex
}

// NewChain creates a playback chain. An empty tempDir uses os.TempDir().
func NewChain(backend Backend, tempDir string, logger *slog.Logger) *Chain {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Chain{
		backend: backend,
		tempDir: tempDir,
		logger:  logger,
		active:  make(map[Slot]*clip),
	}
}

// stage is one attempt at turning bytes into a handle
type stage struct {
	name string
	open func(data []byte, ext string) (*clip, error)
}

func (c *Chain) stages() []stage {
	return []stage{
		{name: "memory", open: c.openInMemory},
		{name: "file", open: c.openFromFile},
	}
}

func (c *Chain) openInMemory(data []byte, _ string) (*clip, error) {
	h, err := c.backend.OpenBytes(data)
	if err != nil {
		return nil, err
	}
	return &clip{handle: h}, nil
}

func (c *Chain) openFromFile(data []byte, ext string) (*clip, error) {
	path := filepath.Join(c.tempDir, fmt.Sprintf("clip-%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temporary clip: %w", err)
	}

	h, err := c.backend.OpenFile(path)
	if err != nil {
		c.removeTemp(path)
		return nil, err
	}
	return &clip{handle: h, tempPath: path}, nil
}

// Open runs the chain and returns the first handle any stage produced.
// The caller owns the returned handle; Play should be preferred so slots are respected.
func (c *Chain) Open(data []byte, formatHint string) (Handle, error) {
	cl, err := c.open(data, formatHint)
	if err != nil {
		return nil, err
	}
	return cl.handle, nil
}

func (c *Chain) open(data []byte, formatHint string) (*clip, error) {
	if len(data) == 0 {
		c.recordFailure()
		return nil, &PlaybackError{Stages: []StageError{{Stage: "input", Err: errors.New("empty audio buffer")}}}
	}

	ext := NormalizeExtension(formatHint)
	var failed []StageError

	for _, st := range c.stages() {
		cl, err := st.open(data, ext)
		if err == nil {
			c.recordOpen(st.name)
			if len(failed) > 0 {
				c.logger.Debug("Playback handle opened after fallback",
					slog.String("stage", st.name),
					slog.String("format_hint", ext),
					slog.Int("failed_stages", len(failed)),
				)
			}
			return cl, nil
		}

		c.logger.Warn("Playback stage failed",
			slog.String("stage", st.name),
			slog.String("format_hint", ext),
			slog.String("sniffed_format", string(SniffFormat(data))),
			slog.Int("audio_size", len(data)),
			slog.String("error", err.Error()),
		)
		failed = append(failed, StageError{Stage: st.name, Err: err})
	}

	c.recordFailure()
	return nil, &PlaybackError{Stages: failed}
}

// Play opens the clip, stops whatever conflicts with the slot and starts playback
func (c *Chain) Play(slot Slot, data []byte, formatHint string) (Handle, error) {
	cl, err := c.open(data, formatHint)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range conflictingSlots(slot) {
		c.releaseLocked(s)
	}

	if err := cl.handle.Play(); err != nil {
		c.release(cl)
		c.failures++
		return nil, &PlaybackError{Stages: []StageError{{Stage: "start", Err: err}}}
	}

	c.active[slot] = cl

	c.logger.Debug("Playback started",
		slog.String("slot", slot.String()),
		slog.Bool("file_backed", cl.tempPath != ""),
		slog.Int("audio_size", len(data)),
	)

	return cl.handle, nil
}

// Stop halts the handle in one slot
func (c *Chain) Stop(slot Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(slot)
}

// StopAll halts every active handle
func (c *Chain) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slot := range c.active {
		c.releaseLocked(slot)
	}
}

// Playing reports whether the slot has a handle that is still producing sound
func (c *Chain) Playing(slot Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.active[slot]
	return ok && cl.handle.Playing()
}

// Close stops all playback and removes temporary clips
func (c *Chain) Close() error {
	c.StopAll()
	return nil
}

// GetStats returns chain statistics
func (c *Chain) GetStats() ChainStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	temp := 0
	for _, cl := range c.active {
		if cl.tempPath != "" {
			temp++
		}
	}

	return ChainStats{
		MemoryOpens: c.memoryOpens,
		FileOpens:   c.fileOpens,
		Failures:    c.failures,
		TempFiles:   temp,
	}
}

func (c *Chain) releaseLocked(slot Slot) {
	cl, ok := c.active[slot]
	if !ok {
		return
	}
	c.release(cl)
	delete(c.active, slot)
}

func (c *Chain) recordOpen(stageName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stageName == "memory" {
		c.memoryOpens++
	} else {
		c.fileOpens++
	}
}

func (c *Chain) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

func (c *Chain) release(cl *clip) {
	cl.handle.Stop()
	if cl.tempPath != "" {
		c.removeTemp(cl.tempPath)
	}
}

// conflictingSlots lists the slots that must be silent before slot starts
func conflictingSlots(slot Slot) []Slot {
	switch slot {
	case SlotTranslation, SlotFact:
		return []Slot{SlotTranslation, SlotFact}
	default:
		return []Slot{slot}
	}
}

func (c *Chain) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("Failed to remove temporary clip",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
