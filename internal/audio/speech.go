package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Placeholders understood by speech command templates
const (
	TextPlaceholder  = "{text}"
	VoicePlaceholder = "{voice}"
)

// SpeechAnnouncer speaks text with an on-device synthesizer such as espeak-ng or say.
// It runs independently of the playback chain and never stops other audio.
type SpeechAnnouncer struct {
	argv   []string
	voice  string
	logger *slog.Logger

	// start launches the synthesizer without waiting for it to finish
	start func(argv []string) error

	spoken uint64
	failed uint64
	mu     sync.Mutex
}

// SpeechStats counts utterances
type SpeechStats struct {
	Spoken uint64 `json:"spoken"`
	Failed uint64 `json:"failed"`
}

// NewSpeechAnnouncer creates an announcer from an argv template. An empty template
// disables synthesis; text is then only logged.
func NewSpeechAnnouncer(argv []string, voice string, logger *slog.Logger) *SpeechAnnouncer {
	tmpl := append([]string(nil), argv...)
	if len(tmpl) > 0 && !templateHas(tmpl, TextPlaceholder) {
		tmpl = append(tmpl, TextPlaceholder)
	}
	return &SpeechAnnouncer{
		argv:   tmpl,
		voice:  voice,
		logger: logger,
		start:  startDetached,
	}
}

// Speak synthesizes text immediately. Empty text is a no-op.
func (s *SpeechAnnouncer) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(s.argv) == 0 {
		s.logger.Info("Speech synthesis unavailable, announcing as text",
			slog.String("text", text),
		)
		s.count(nil)
		return nil
	}

	argv := expandTemplate(s.argv, TextPlaceholder, text)
	argv = expandTemplate(argv, VoicePlaceholder, s.voice)

	err := s.start(argv)
	s.count(err)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	s.logger.Debug("Speaking fallback text",
		slog.String("text", text),
		slog.String("synthesizer", argv[0]),
	)
	return nil
}

// GetStats returns utterance counters
func (s *SpeechAnnouncer) GetStats() SpeechStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpeechStats{Spoken: s.spoken, Failed: s.failed}
}

func (s *SpeechAnnouncer) count(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		return
	}
	s.spoken++
}

func templateHas(tmpl []string, placeholder string) bool {
	for _, a := range tmpl {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

func startDetached(argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the process; utterances are fire-and-forget
	go func() { _ = cmd.Wait() }()
	return nil
}
