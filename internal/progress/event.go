// Package progress defines the event structures emitted while archiving.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageItemStarted Stage = "ITEM_STARTED"
	StageItemDone    Stage = "ITEM_DONE"
	StageItemFailed  Stage = "ITEM_FAILED"
	StageMediaStored Stage = "MEDIA_STORED"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Item is the kind:key of the item for item stages.
	Item string
	// Kind is the item kind, kept separately for metric labels.
	Kind string
	// Depth is the item's distance from its seed.
	Depth int
	// Digest names the stored media for MEDIA_STORED.
	Digest string
	// Bytes is the payload or media size.
	Bytes int64
	// Count is the seed count for RUN_START and the item count for run completion.
	Count int
	// Dur is the time spent on the item or run.
	Dur time.Duration
	// Reason carries the failure text for ITEM_FAILED and RUN_ERROR.
	Reason string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageItemStarted, StageItemDone:
		if e.Item == "" {
			return fmt.Errorf("%s requires item", e.Stage)
		}
	case StageItemFailed:
		if e.Item == "" {
			return errors.New("item failed requires item")
		}
		if e.Reason == "" {
			return errors.New("item failed requires reason")
		}
	case StageMediaStored:
		if e.Digest == "" {
			return errors.New("media stored requires digest")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
