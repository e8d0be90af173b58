package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// EventKind is the anchor lifecycle transition carried by an Event
type EventKind uint8

const (
	EventAdded   EventKind = 1
	EventUpdated EventKind = 2
	EventRemoved EventKind = 3
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Pose is a 4x4 column-major transform
type Pose [16]float32

// IdentityPose returns the identity transform
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns the position component of the transform
func (p Pose) Translation() r3.Vector {
	return r3.Vector{X: float64(p[12]), Y: float64(p[13]), Z: float64(p[14])}
}

// Anchor is a sensor-tracked physical object instance
type Anchor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsTracked bool      `json:"is_tracked"`
	Pose      Pose      `json:"pose"`
	Extent    r3.Vector `json:"extent"`
}

// Event is one anchor lifecycle transition from the sensor
type Event struct {
	Kind       EventKind
	Anchor     Anchor
	ReceivedAt time.Time
}

// Visualization is the overlay state of an anchor
type Visualization struct {
	OriginalLabel   string `json:"original_label"`
	TranslatedLabel string `json:"translated_label"`
	Hidden          bool   `json:"hidden"`
}

// AnchorState is a read-only view of one live anchor
type AnchorState struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	IsTracked     bool          `json:"is_tracked"`
	Position      r3.Vector     `json:"position"`
	Extent        r3.Vector     `json:"extent"`
	Visualization Visualization `json:"visualization"`
	AddedAt       time.Time     `json:"added_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ErrUnknownAnchor is returned for updates and removals of IDs that are not live
var ErrUnknownAnchor = errors.New("unknown anchor")

// DuplicateAnchorError is returned when an Added event names an ID that is already live
type DuplicateAnchorError struct {
	ID uuid.UUID
}

func (e *DuplicateAnchorError) Error() string {
	return fmt.Sprintf("anchor %s is already tracked", e.ID)
}
