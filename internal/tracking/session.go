package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/announce"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/metrics"
)

// DefaultFallbackLabel is shown for anchors without a usable name
const DefaultFallbackLabel = "Object"

// LabelSink receives overlay label changes for display
type LabelSink interface {
	LabelChanged(id uuid.UUID, label string)
}

// Announcer resolves and announces an object name
type Announcer interface {
	Announce(ctx context.Context, name string, force bool) (announce.Outcome, error)
}

// Cue plays a short detection sound
type Cue interface {
	Cue() error
}

// Config contains session configuration
type Config struct {
	// FallbackLabel is shown when an anchor has no name
	FallbackLabel string
	// Aliases maps raw reference-object names to display names
	Aliases map[string]string
	// DetectionCue plays a tone for every added anchor
	DetectionCue bool
	// LookupTimeout bounds each lookup task; zero leaves it to the client
	LookupTimeout time.Duration
}

// SessionStats represents session statistics
type SessionStats struct {
	LiveAnchors      int    `json:"live_anchors"`
	EventsHandled    uint64 `json:"events_handled"`
	Added            uint64 `json:"added"`
	Updated          uint64 `json:"updated"`
	Removed          uint64 `json:"removed"`
	Duplicates       uint64 `json:"duplicates"`
	UnknownAnchors   uint64 `json:"unknown_anchors"`
	LookupsStarted   uint64 `json:"lookups_started"`
	LookupFailures   uint64 `json:"lookup_failures"`
	LabelUpdates     uint64 `json:"label_updates"`
	DiscardedResults uint64 `json:"discarded_results"`
}

// record is the session-owned state of one live anchor
type record struct {
	anchor     Anchor
	vis        Visualization
	generation uint64
	addedAt    time.Time
	updatedAt  time.Time
}

// Session owns every live anchor record and its visualization
type Session struct {
	announcer Announcer
	sink      LabelSink
	cue       Cue
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	records    map[uuid.UUID]*record
	generation uint64
	stats      SessionStats
	mu         sync.RWMutex

	// notifyMu orders sink notifications with record removal so a label
	// is never delivered for an anchor after its removal was applied
	notifyMu sync.Mutex

	lookups sync.WaitGroup
}

// NewSession creates a tracking session. sink, cue and m may be nil.
func NewSession(announcer Announcer, sink LabelSink, cue Cue, config Config, logger *slog.Logger, m *metrics.Metrics) *Session {
	if config.FallbackLabel == "" {
		config.FallbackLabel = DefaultFallbackLabel
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &Session{
		announcer: announcer,
		sink:      sink,
		cue:       cue,
		config:    config,
		logger:    logger,
		metrics:   m,
		records:   make(map[uuid.UUID]*record),
	}
}

type discardSink struct{}

func (discardSink) LabelChanged(uuid.UUID, string) {}

// Run consumes events in arrival order until the source closes or ctx is cancelled.
// Rejected events are logged and dropped; they never stop the loop.
func (s *Session) Run(ctx context.Context, events <-chan Event) error {
	s.logger.Info("Tracking session started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Tracking session stopping", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("Anchor event source closed, tracking session stopping")
				return nil
			}
			if err := s.Handle(ev); err != nil {
				s.logger.Warn("Anchor event dropped",
					slog.String("kind", ev.Kind.String()),
					slog.String("anchor_id", ev.Anchor.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Handle applies one event. It never waits for a lookup.
func (s *Session) Handle(ev Event) error {
	var err error
	switch ev.Kind {
	case EventAdded:
		err = s.add(ev.Anchor)
	case EventUpdated:
		err = s.update(ev.Anchor)
	case EventRemoved:
		err = s.remove(ev.Anchor.ID)
	default:
		err = fmt.Errorf("unknown event kind %d", uint8(ev.Kind))
	}

	s.mu.Lock()
	s.stats.EventsHandled++
	s.mu.Unlock()

	if err == nil {
		s.metrics.RecordAnchorEvent(ev.Kind.String())
	}
	return err
}

func (s *Session) add(a Anchor) error {
	name := s.displayName(a.Name)
	label := name
	if label == "" {
		label = s.config.FallbackLabel
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if _, exists := s.records[a.ID]; exists {
		s.stats.Duplicates++
		s.mu.Unlock()
		s.metrics.RecordDroppedEvent("duplicate")
		return &DuplicateAnchorError{ID: a.ID}
	}

	now := time.Now()
	s.generation++
	a.Name = name
	rec := &record{
		anchor:     a,
		vis:        Visualization{OriginalLabel: label, TranslatedLabel: label, Hidden: !a.IsTracked},
		generation: s.generation,
		addedAt:    now,
		updatedAt:  now,
	}
	s.records[a.ID] = rec
	s.stats.Added++
	if name != "" {
		s.stats.LookupsStarted++
	}
	count := len(s.records)
	s.mu.Unlock()

	s.metrics.SetActiveAnchors(count)
	s.sink.LabelChanged(a.ID, label)

	s.logger.Debug("Anchor added",
		slog.String("anchor_id", a.ID.String()),
		slog.String("name", name),
		slog.String("label", label),
		slog.Int("live_anchors", count),
	)

	if s.config.DetectionCue && s.cue != nil {
		s.lookups.Add(1)
		go s.playCue()
	}

	if name != "" {
		s.lookups.Add(1)
		go s.lookup(a.ID, rec.generation, name, now)
	}
	return nil
}

func (s *Session) update(a Anchor) error {
	s.mu.Lock()
	rec, ok := s.records[a.ID]
	if !ok {
		s.stats.UnknownAnchors++
		s.mu.Unlock()
		s.metrics.RecordDroppedEvent("unknown")
		return fmt.Errorf("%w: %s", ErrUnknownAnchor, a.ID)
	}

	wasHidden := rec.vis.Hidden
	if a.IsTracked {
		rec.anchor.IsTracked = true
		rec.anchor.Pose = a.Pose
		rec.anchor.Extent = a.Extent
		rec.vis.Hidden = false
	} else {
		rec.anchor.IsTracked = false
		rec.vis.Hidden = true
	}
	rec.updatedAt = time.Now()
	s.stats.Updated++
	hidden := rec.vis.Hidden
	s.mu.Unlock()

	if hidden != wasHidden {
		s.logger.Debug("Anchor visibility changed",
			slog.String("anchor_id", a.ID.String()),
			slog.Bool("hidden", hidden),
		)
	}
	return nil
}

func (s *Session) remove(id uuid.UUID) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.stats.UnknownAnchors++
		s.mu.Unlock()
		s.metrics.RecordDroppedEvent("unknown")
		return fmt.Errorf("%w: %s", ErrUnknownAnchor, id)
	}
	delete(s.records, id)
	s.stats.Removed++
	count := len(s.records)
	s.mu.Unlock()

	s.metrics.SetActiveAnchors(count)

	s.logger.Debug("Anchor removed",
		slog.String("anchor_id", id.String()),
		slog.String("label", rec.vis.TranslatedLabel),
		slog.Duration("tracked_for", time.Since(rec.addedAt)),
		slog.Int("live_anchors", count),
	)
	return nil
}

// playCue sounds the detection cue off the event loop
func (s *Session) playCue() {
	defer s.lookups.Done()

	if err := s.cue.Cue(); err != nil {
		s.logger.Warn("Detection cue failed", slog.String("error", err.Error()))
		return
	}
	s.metrics.RecordDetectionCue()
}

// lookup runs one announcement for an added anchor. Removal does not cancel it;
// the result is dropped if the anchor is gone or its ID was reused.
func (s *Session) lookup(id uuid.UUID, generation uint64, name string, addedAt time.Time) {
	defer s.lookups.Done()

	ctx := context.Background()
	if s.config.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.LookupTimeout)
		defer cancel()
	}

	outcome, err := s.announcer.Announce(ctx, name, false)
	s.metrics.RecordAnchorLookupDelay(time.Since(addedAt).Seconds())

	if err != nil {
		s.mu.Lock()
		s.stats.LookupFailures++
		s.mu.Unlock()

		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "Translation unavailable, keeping fallback label",
			slog.String("anchor_id", id.String()),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}

	s.applyTranslation(id, generation, outcome.Translation)
}

func (s *Session) applyTranslation(id uuid.UUID, generation uint64, translated string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.generation != generation {
		s.stats.DiscardedResults++
		s.mu.Unlock()
		s.metrics.RecordDiscardedResult()
		s.logger.Debug("Discarding translation for removed anchor",
			slog.String("anchor_id", id.String()),
		)
		return
	}

	label := strings.TrimSpace(translated)
	if label == "" {
		s.mu.Unlock()
		return
	}

	rec.vis.TranslatedLabel = label
	s.stats.LabelUpdates++
	s.mu.Unlock()

	s.metrics.RecordLabelUpdate()
	s.sink.LabelChanged(id, label)
}

// displayName trims the sensor name and applies the configured alias
func (s *Session) displayName(raw string) string {
	name := strings.TrimSpace(raw)
	if alias, ok := s.config.Aliases[name]; ok {
		return strings.TrimSpace(alias)
	}
	return name
}

// Close waits for every in-flight lookup and cue task to finish
func (s *Session) Close() {
	s.lookups.Wait()

	stats := s.GetStats()
	s.logger.Info("Tracking session closed",
		slog.Int("live_anchors", stats.LiveAnchors),
		slog.Uint64("events_handled", stats.EventsHandled),
		slog.Uint64("label_updates", stats.LabelUpdates),
		slog.Uint64("discarded_results", stats.DiscardedResults),
	)
}

// Count returns the number of live visualizations
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Visualization returns the overlay state of a live anchor
func (s *Session) Visualization(id uuid.UUID) (Visualization, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Visualization{}, false
	}
	return rec.vis, true
}

// Anchor returns a copy of a live anchor record
func (s *Session) Anchor(id uuid.UUID) (Anchor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Anchor{}, false
	}
	return rec.anchor, true
}

// State returns the read-only view of one live anchor
func (s *Session) State(id uuid.UUID) (AnchorState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return AnchorState{}, false
	}
	return rec.state(), true
}

// Snapshot returns every live anchor ordered by addition time
func (s *Session) Snapshot() []AnchorState {
	s.mu.RLock()
	states := make([]AnchorState, 0, len(s.records))
	for _, rec := range s.records {
		states = append(states, rec.state())
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		if states[i].AddedAt.Equal(states[j].AddedAt) {
			return states[i].ID.String() < states[j].ID.String()
		}
		return states[i].AddedAt.Before(states[j].AddedAt)
	})
	return states
}

// GetStats returns session statistics
func (s *Session) GetStats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.LiveAnchors = len(s.records)
	return stats
}

func (r *record) state() AnchorState {
	return AnchorState{
		ID:            r.anchor.ID,
		Name:          r.anchor.Name,
		IsTracked:     r.anchor.IsTracked,
		Position:      r.anchor.Pose.Translation(),
		Extent:        r.anchor.Extent,
		Visualization: r.vis,
		AddedAt:       r.addedAt,
		UpdatedAt:     r.updatedAt,
	}
}
