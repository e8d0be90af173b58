package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/audio"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/metrics"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/translation"
)

var (
	// ErrEmptyName is returned when there is nothing to announce
	ErrEmptyName = errors.New("object name is empty")

	// ErrNotAnnounced is returned by Replay for names without a successful lookup
	ErrNotAnnounced = errors.New("name has not been announced")

	// ErrNoAudio is returned by Replay when the cached result has no payload for the slot
	ErrNoAudio = errors.New("no audio payload for slot")
)

// Translator resolves an object name
type Translator interface {
	Lookup(ctx context.Context, name string, maxRetries int) (*translation.Result, error)
}

// Player plays decoded audio in a slot
type Player interface {
	Play(slot audio.Slot, data []byte, formatHint string) (audio.Handle, error)
	StopAll()
}

// Speaker synthesizes text when no audio could be played
type Speaker interface {
	Speak(text string) error
}

// Source names what an announcement ended up playing
type Source string

const (
	SourceNone             Source = "none"
	SourceTranslationAudio Source = "translation_audio"
	SourceFactAudio        Source = "fact_audio"
	SourceSpeech           Source = "speech"
)

// Config contains coordinator configuration
type Config struct {
	// MaxRetries is passed to every lookup
	MaxRetries int
	// FormatHint names the container of decoded payloads (file extension for the file stage)
	FormatHint string
	// LookupTimeout bounds a shared lookup; zero leaves it to the translator
	LookupTimeout time.Duration
}

// Outcome describes one Announce call
type Outcome struct {
	Name        string `json:"name"`
	Translation string `json:"translation"`
	Fact        string `json:"fact,omitempty"`
	Debounced   bool   `json:"debounced"`
	Shared      bool   `json:"shared"`
	Audio       Source `json:"audio"`
}

// Entry is one announced name with its cached result
type Entry struct {
	Name                string `json:"name"`
	Translation         string `json:"translation"`
	Fact                string `json:"fact,omitempty"`
	HasTranslationAudio bool   `json:"has_translation_audio"`
	HasFactAudio        bool   `json:"has_fact_audio"`
}

// Stats represents coordinator statistics
type Stats struct {
	Announcements   uint64 `json:"announcements"`
	Lookups         uint64 `json:"lookups"`
	LookupFailures  uint64 `json:"lookup_failures"`
	Debounced       uint64 `json:"debounced"`
	Coalesced       uint64 `json:"coalesced"`
	AudioPlayed     uint64 `json:"audio_played"`
	SpeechFallbacks uint64 `json:"speech_fallbacks"`
	AnnouncedNames  int    `json:"announced_names"`
}

// Coordinator owns the debounce set and drives lookup, playback and speech fallback
type Coordinator struct {
	translator Translator
	player     Player
	speaker    Speaker
	config     Config
	logger     *slog.Logger
	metrics    *metrics.Metrics

	group singleflight.Group

	// announced is the debounce set; it also caches the successful result per name
	announced map[string]*translation.Result
	stats     Stats
	mu        sync.Mutex
}

// NewCoordinator creates a coordinator. m may be nil.
func NewCoordinator(translator Translator, player Player, speaker Speaker, config Config, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if config.FormatHint == "" {
		config.FormatHint = audio.DefaultFormatHint
	}
	return &Coordinator{
		translator: translator,
		player:     player,
		speaker:    speaker,
		config:     config,
		logger:     logger,
		metrics:    m,
		announced:  make(map[string]*translation.Result),
	}
}

// Announce looks up name and plays its audio. Without force, a name that was
// already announced successfully is a no-op returning the cached translation,
// and concurrent calls for the same unseen name share one lookup.
// Lookup failures are spoken as the original name and returned.
func (c *Coordinator) Announce(ctx context.Context, name string, force bool) (Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Outcome{}, ErrEmptyName
	}

	c.mu.Lock()
	c.stats.Announcements++
	c.mu.Unlock()

	if force {
		return c.announce(ctx, name, true)
	}

	// The shared lookup outlives any single caller; each caller only stops waiting on its own context
	ch := c.group.DoChan(name, func() (any, error) {
		lookupCtx := context.WithoutCancel(ctx)
		if c.config.LookupTimeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(lookupCtx, c.config.LookupTimeout)
			defer cancel()
		}
		return c.announce(lookupCtx, name, false)
	})

	select {
	case res := <-ch:
		outcome := res.Val.(Outcome)
		if res.Shared {
			outcome.Shared = true
			c.mu.Lock()
			c.stats.Coalesced++
			c.mu.Unlock()
			c.metrics.RecordCoalesced()
		}
		return outcome, res.Err
	case <-ctx.Done():
		return Outcome{Name: name, Audio: SourceNone}, fmt.Errorf("announcement of %q abandoned: %w", name, ctx.Err())
	}
}

func (c *Coordinator) announce(ctx context.Context, name string, force bool) (Outcome, error) {
	if !force {
		if cached, ok := c.cached(name); ok {
			c.mu.Lock()
			c.stats.Debounced++
			c.mu.Unlock()
			c.metrics.RecordDebounced()

			c.logger.Debug("Announcement debounced", slog.String("name", name))
			return Outcome{
				Name:        name,
				Translation: strings.TrimSpace(cached.Translation),
				Fact:        cached.Fact,
				Debounced:   true,
				Audio:       SourceNone,
			}, nil
		}
	}

	c.mu.Lock()
	c.stats.Lookups++
	c.mu.Unlock()
	c.metrics.RecordLookupRequest()

	startTime := time.Now()
	result, err := c.translator.Lookup(ctx, name, c.config.MaxRetries)
	elapsed := time.Since(startTime)

	if err != nil {
		c.mu.Lock()
		c.stats.LookupFailures++
		c.mu.Unlock()
		c.metrics.RecordLookupFailure(translation.Classify(err), elapsed.Seconds())

		c.logger.Warn("Translation lookup failed, speaking original name",
			slog.String("name", name),
			slog.String("error_type", translation.Classify(err)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)

		outcome := Outcome{Name: name, Audio: SourceNone}
		if c.speak(name) {
			outcome.Audio = SourceSpeech
		}
		return outcome, fmt.Errorf("announcement of %q failed: %w", name, err)
	}

	c.remember(name, result)
	c.metrics.RecordLookupSuccess(elapsed.Seconds())

	outcome := Outcome{
		Name:        name,
		Translation: strings.TrimSpace(result.Translation),
		Fact:        result.Fact,
	}
	outcome.Audio = c.playResult(name, outcome.Translation, result)

	c.logger.Info("Object announced",
		slog.String("name", name),
		slog.String("translation", outcome.Translation),
		slog.String("audio", string(outcome.Audio)),
		slog.Bool("forced", force),
		slog.Duration("lookup_time", elapsed),
	)

	return outcome, nil
}

// audioCandidate is one payload the coordinator may play
type audioCandidate struct {
	source  Source
	slot    audio.Slot
	payload string
}

// playResult plays translation audio, then fact audio, then speaks the text
func (c *Coordinator) playResult(name, text string, result *translation.Result) Source {
	candidates := []audioCandidate{
		{source: SourceTranslationAudio, slot: audio.SlotTranslation, payload: result.TranslationAudio},
		{source: SourceFactAudio, slot: audio.SlotFact, payload: result.FactAudio},
	}

	for _, cand := range candidates {
		if strings.TrimSpace(cand.payload) == "" {
			continue
		}
		if err := c.playPayload(cand.slot, cand.payload); err != nil {
			c.logger.Warn("Audio payload could not be played",
				slog.String("name", name),
				slog.String("source", string(cand.source)),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.markPlayed()
		return cand.source
	}

	if text == "" {
		text = name
	}
	if c.speak(text) {
		return SourceSpeech
	}
	return SourceNone
}

func (c *Coordinator) playPayload(slot audio.Slot, payload string) error {
	data, err := audio.DecodePayload(payload)
	if err != nil {
		c.metrics.RecordPlaybackFailure("decode")
		return err
	}

	if _, err := c.player.Play(slot, data, c.config.FormatHint); err != nil {
		c.metrics.RecordPlaybackFailure("init")
		return err
	}

	c.metrics.RecordPlayback(slot.String()+"_audio", len(data))
	return nil
}

func (c *Coordinator) speak(text string) bool {
	err := c.speaker.Speak(text)

	c.mu.Lock()
	c.stats.SpeechFallbacks++
	c.mu.Unlock()
	c.metrics.RecordSpeechFallback(err == nil)

	if err != nil {
		c.logger.Error("Speech fallback failed",
			slog.String("text", text),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Replay plays the cached audio of an announced name in slot without a new lookup
func (c *Coordinator) Replay(name string, slot audio.Slot) error {
	name = strings.TrimSpace(name)
	cached, ok := c.cached(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotAnnounced, name)
	}

	var payload string
	switch slot {
	case audio.SlotTranslation:
		payload = cached.TranslationAudio
	case audio.SlotFact:
		payload = cached.FactAudio
	}
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("%w: %s", ErrNoAudio, slot)
	}

	if err := c.playPayload(slot, payload); err != nil {
		return fmt.Errorf("replay of %q failed: %w", name, err)
	}
	c.markPlayed()
	return nil
}

// Stop halts any playing announcement audio
func (c *Coordinator) Stop() {
	c.player.StopAll()
}

// ResetDebounce forgets every announced name
func (c *Coordinator) ResetDebounce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.announced = make(map[string]*translation.Result)
}

// Announced reports whether name is in the debounce set
func (c *Coordinator) Announced(name string) bool {
	_, ok := c.cached(strings.TrimSpace(name))
	return ok
}

// Entries returns the announced names and their cached results, sorted by name
func (c *Coordinator) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.announced))
	for name, r := range c.announced {
		entries = append(entries, Entry{
			Name:                name,
			Translation:         strings.TrimSpace(r.Translation),
			Fact:                r.Fact,
			HasTranslationAudio: r.TranslationAudio != "",
			HasFactAudio:        r.FactAudio != "",
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// GetStats returns coordinator statistics
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.AnnouncedNames = len(c.announced)
	return stats
}

func (c *Coordinator) cached(name string) (*translation.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.announced[name]
	return r, ok
}

func (c *Coordinator) remember(name string, result *translation.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.announced[name] = result
}

func (c *Coordinator) markPlayed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.AudioPlayed++
}
