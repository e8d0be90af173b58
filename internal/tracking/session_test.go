package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/announce"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/audio"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/translation"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAnnouncer answers from a table and can hold individual names until released
type fakeAnnouncer struct {
	mu           sync.Mutex
	translations map[string]string
	failures     map[string]error
	gates        map[string]chan struct{}
	calls        []string
}

func newFakeAnnouncer() *fakeAnnouncer {
	return &fakeAnnouncer{
		translations: make(map[string]string),
		failures:     make(map[string]error),
		gates:        make(map[string]chan struct{}),
	}
}

func (f *fakeAnnouncer) hold(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[name] = gate
	return gate
}

func (f *fakeAnnouncer) Announce(ctx context.Context, name string, force bool) (announce.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate := f.gates[name]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[name]; err != nil {
		return announce.Outcome{Name: name}, err
	}
	return announce.Outcome{Name: name, Translation: f.translations[name]}, nil
}

func (f *fakeAnnouncer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type labelChange struct {
	ID    uuid.UUID
	Label string
}

type recordingSink struct {
	mu      sync.Mutex
	changes []labelChange
}

func (s *recordingSink) LabelChanged(id uuid.UUID, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, labelChange{ID: id, Label: label})
}

func (s *recordingSink) Changes() []labelChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]labelChange(nil), s.changes...)
}

type countingCue struct {
	mu    sync.Mutex
	count int

	// gate blocks cues until closed when non-nil
	gate chan struct{}
}

func (c *countingCue) Cue() error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return nil
}

func (c *countingCue) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func added(id uuid.UUID, name string) Event {
	return Event{Kind: EventAdded, Anchor: Anchor{ID: id, Name: name, IsTracked: true, Pose: IdentityPose()}}
}

func removed(id uuid.UUID) Event {
	return Event{Kind: EventRemoved, Anchor: Anchor{ID: id}}
}

func TestAddedShowsNameImmediately(t *testing.T) {
	ann := newFakeAnnouncer()
	ann.translations["house"] = " calli "
	gate := ann.hold("house")
	sink := &recordingSink{}
	s := NewSession(ann, sink, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "house")))

	vis, ok := s.Visualization(id)
	require.True(t, ok)
	assert.Equal(t, Visualization{OriginalLabel: "house", TranslatedLabel: "house"}, vis)

	close(gate)
	s.Close()

	vis, _ = s.Visualization(id)
	assert.Equal(t, "calli", vis.TranslatedLabel)
	assert.Equal(t, "house", vis.OriginalLabel)

	expected := []labelChange{{id, "house"}, {id, "calli"}}
	if diff := cmp.Diff(expected, sink.Changes()); diff != "" {
		t.Errorf("Label changes mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyNameUsesFallbackWithoutLookup(t *testing.T) {
	ann := newFakeAnnouncer()
	s := NewSession(ann, nil, nil, Config{FallbackLabel: "Duck"}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "   ")))
	s.Close()

	vis, ok := s.Visualization(id)
	require.True(t, ok)
	assert.Equal(t, "Duck", vis.TranslatedLabel)
	assert.Empty(t, ann.Calls())
}

func TestLookupFailureKeepsFallback(t *testing.T) {
	ann := newFakeAnnouncer()
	ann.failures["house"] = &translation.StatusError{Code: 503}
	s := NewSession(ann, nil, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "house")))
	s.Close()

	vis, _ := s.Visualization(id)
	assert.Equal(t, "house", vis.TranslatedLabel)
	assert.Equal(t, uint64(1), s.GetStats().LookupFailures)
}

func TestEmptyTranslationKeepsFallback(t *testing.T) {
	ann := newFakeAnnouncer()
	ann.translations["house"] = "  "
	sink := &recordingSink{}
	s := NewSession(ann, sink, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "house")))
	s.Close()

	vis, _ := s.Visualization(id)
	assert.Equal(t, "house", vis.TranslatedLabel)
	assert.Len(t, sink.Changes(), 1)
}

func TestRemovedDiscardsLateResult(t *testing.T) {
	ann := newFakeAnnouncer()
	ann.translations["house"] = "calli"
	gate := ann.hold("house")
	sink := &recordingSink{}
	s := NewSession(ann, sink, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "house")))
	require.NoError(t, s.Handle(removed(id)))

	close(gate)
	s.Close()

	_, ok := s.Visualization(id)
	assert.False(t, ok, "a late result must not resurrect a removed anchor")
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, []labelChange{{id, "house"}}, sink.Changes())
	assert.Equal(t, uint64(1), s.GetStats().DiscardedResults)
}

func TestReusedIDIgnoresPreviousLookup(t *testing.T) {
	ann := newFakeAnnouncer()
	ann.translations["house"] = "calli"
	ann.translations["tree"] = "cuahuitl"
	houseGate := ann.hold("house")
	treeGate := ann.hold("tree")
	s := NewSession(ann, nil, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "house")))
	require.NoError(t, s.Handle(removed(id)))
	require.NoError(t, s.Handle(added(id, "tree")))

	// The stale lookup finishes first and must not label the new incarnation
	close(houseGate)
	require.Eventually(t, func() bool {
		return s.GetStats().DiscardedResults == 1
	}, time.Second, 5*time.Millisecond)

	vis, _ := s.Visualization(id)
	assert.Equal(t, "tree", vis.TranslatedLabel)

	close(treeGate)
	s.Close()

	vis, _ = s.Visualization(id)
	assert.Equal(t, "cuahuitl", vis.TranslatedLabel)
}

func TestUpdatedTogglesVisibility(t *testing.T) {
	s := NewSession(newFakeAnnouncer(), nil, nil, Config{}, newTestLogger(), nil)
	defer s.Close()

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "")))

	pose := IdentityPose()
	pose[12], pose[13], pose[14] = 1.5, -2, 0.25
	extent := r3.Vector{X: 0.3, Y: 0.2, Z: 0.1}

	// Untracked updates hide without touching the pose
	require.NoError(t, s.Handle(Event{Kind: EventUpdated, Anchor: Anchor{ID: id, IsTracked: false, Pose: pose, Extent: extent}}))
	vis, ok := s.Visualization(id)
	require.True(t, ok, "untracked anchors are hidden, not destroyed")
	assert.True(t, vis.Hidden)
	a, _ := s.Anchor(id)
	assert.Equal(t, IdentityPose(), a.Pose)

	require.NoError(t, s.Handle(Event{Kind: EventUpdated, Anchor: Anchor{ID: id, IsTracked: true, Pose: pose, Extent: extent}}))
	vis, _ = s.Visualization(id)
	assert.False(t, vis.Hidden)

	a, _ = s.Anchor(id)
	want := Anchor{ID: id, IsTracked: true, Pose: pose, Extent: extent}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("Anchor mismatch (-want +got):\n%s", diff)
	}

	state, ok := s.State(id)
	require.True(t, ok)
	assert.Equal(t, r3.Vector{X: 1.5, Y: -2, Z: 0.25}, state.Position)
}

func TestDuplicateAddedIsDropped(t *testing.T) {
	ann := newFakeAnnouncer()
	s := NewSession(ann, nil, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "house")))
	err := s.Handle(added(id, "tree"))

	var dup *DuplicateAnchorError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, id, dup.ID)

	s.Close()
	vis, _ := s.Visualization(id)
	assert.Equal(t, "house", vis.OriginalLabel)
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, []string{"house"}, ann.Calls())
}

func TestUnknownAnchorEvents(t *testing.T) {
	s := NewSession(newFakeAnnouncer(), nil, nil, Config{}, newTestLogger(), nil)

	err := s.Handle(Event{Kind: EventUpdated, Anchor: Anchor{ID: uuid.New(), IsTracked: true}})
	assert.ErrorIs(t, err, ErrUnknownAnchor)

	err = s.Handle(removed(uuid.New()))
	assert.ErrorIs(t, err, ErrUnknownAnchor)

	err = s.Handle(Event{Kind: EventKind(9)})
	assert.Error(t, err)

	assert.Equal(t, 0, s.Count())
	assert.Equal(t, uint64(2), s.GetStats().UnknownAnchors)
}

func TestLiveCountMatchesAddedMinusRemoved(t *testing.T) {
	ann := newFakeAnnouncer()
	s := NewSession(ann, nil, nil, Config{}, newTestLogger(), nil)
	defer s.Close()

	rng := rand.New(rand.NewPCG(7, 11))
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
	}
	live := make(map[uuid.UUID]bool)

	for step := 0; step < 500; step++ {
		id := ids[rng.IntN(len(ids))]
		switch rng.IntN(3) {
		case 0:
			err := s.Handle(added(id, "cup"))
			assert.Equal(t, live[id], err != nil)
			live[id] = true
		case 1:
			err := s.Handle(Event{Kind: EventUpdated, Anchor: Anchor{ID: id, IsTracked: rng.IntN(2) == 0}})
			assert.Equal(t, !live[id], err != nil)
		case 2:
			err := s.Handle(removed(id))
			assert.Equal(t, !live[id], err != nil)
			delete(live, id)
		}

		require.Equal(t, len(live), s.Count(), "step %d", step)
		require.Len(t, s.Snapshot(), len(live))
	}
}

func TestAliasesAndDetectionCue(t *testing.T) {
	ann := newFakeAnnouncer()
	ann.translations["Keyboard"] = "teclado"
	cue := &countingCue{}
	s := NewSession(ann, nil, cue, Config{
		Aliases:      map[string]string{"Apple Magic Keyboard": "Keyboard"},
		DetectionCue: true,
	}, newTestLogger(), nil)

	id := uuid.New()
	require.NoError(t, s.Handle(added(id, "Apple Magic Keyboard")))
	s.Close()

	vis, _ := s.Visualization(id)
	assert.Equal(t, Visualization{OriginalLabel: "Keyboard", TranslatedLabel: "teclado"}, vis)
	assert.Equal(t, []string{"Keyboard"}, ann.Calls())
	assert.Equal(t, 1, cue.Count())
}

func TestSlowCueDoesNotBlockEvents(t *testing.T) {
	cue := &countingCue{gate: make(chan struct{})}
	s := NewSession(newFakeAnnouncer(), nil, cue, Config{DetectionCue: true}, newTestLogger(), nil)

	first, second := uuid.New(), uuid.New()
	handled := make(chan struct{})
	go func() {
		defer close(handled)
		s.Handle(added(first, ""))
		s.Handle(added(second, ""))
		s.Handle(removed(first))
	}()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("event handling waited on the detection cue")
	}
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 0, cue.Count())

	close(cue.gate)
	s.Close()
	assert.Equal(t, 2, cue.Count())
}

func TestRunDrainsInOrder(t *testing.T) {
	ann := newFakeAnnouncer()
	s := NewSession(ann, nil, nil, Config{}, newTestLogger(), nil)

	id := uuid.New()
	events := make(chan Event, 4)
	events <- added(id, "cup")
	events <- Event{Kind: EventUpdated, Anchor: Anchor{ID: id, IsTracked: false}}
	events <- added(id, "cup") // duplicate, dropped without stopping the loop
	events <- removed(id)
	close(events)

	require.NoError(t, s.Run(context.Background(), events))
	s.Close()

	stats := s.GetStats()
	assert.Equal(t, uint64(4), stats.EventsHandled)
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, 0, stats.LiveAnchors)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewSession(newFakeAnnouncer(), nil, nil, Config{}, newTestLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, make(chan Event)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

// End to end through the real coordinator: label, audio and debounce

type scriptedTranslator struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (tr *scriptedTranslator) Lookup(ctx context.Context, name string, maxRetries int) (*translation.Result, error) {
	tr.mu.Lock()
	tr.calls++
	gate := tr.gate
	tr.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return &translation.Result{Translation: "calli", TranslationAudio: "aGVsbG8"}, nil
}

type memoryPlayer struct {
	mu    sync.Mutex
	plays [][]byte
}

func (p *memoryPlayer) Play(slot audio.Slot, data []byte, hint string) (audio.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, data)
	return nil, nil
}

func (p *memoryPlayer) StopAll() {}

type silentSpeaker struct{}

func (silentSpeaker) Speak(string) error { return nil }

func TestHouseScenario(t *testing.T) {
	tr := &scriptedTranslator{gate: make(chan struct{})}
	player := &memoryPlayer{}
	coord := announce.NewCoordinator(tr, player, silentSpeaker{}, announce.Config{MaxRetries: 2}, newTestLogger(), nil)
	s := NewSession(coord, nil, nil, Config{}, newTestLogger(), nil)

	first := uuid.New()
	require.NoError(t, s.Handle(added(first, "house")))

	vis, _ := s.Visualization(first)
	assert.Equal(t, "house", vis.TranslatedLabel, "fallback label is shown while the lookup is pending")

	close(tr.gate)
	s.Close()

	vis, _ = s.Visualization(first)
	assert.Equal(t, "calli", vis.TranslatedLabel)
	assert.True(t, coord.Announced("house"))
	require.Len(t, player.plays, 1)
	assert.Equal(t, []byte("hello"), player.plays[0])

	second := uuid.New()
	require.NoError(t, s.Handle(added(second, "house")))
	s.Close()

	assert.Equal(t, 1, tr.calls, "a debounced name must not trigger a new lookup")
	assert.Len(t, player.plays, 1)
	vis, _ = s.Visualization(second)
	assert.Equal(t, "calli", vis.TranslatedLabel)
}
