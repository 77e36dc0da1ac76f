package progress

import (
	"time"

	"github.com/google/uuid"
)

// Reporter stamps events with one run's ID and the current time before handing
// them to an Emitter.
type Reporter struct {
	runID   [16]byte
	emitter Emitter
	now     func() time.Time
}

// NewReporter binds emitter to runID. A nil emitter discards events; a nil now
// uses time.Now.
func NewReporter(emitter Emitter, runID uuid.UUID, now func() time.Time) *Reporter {
	if emitter == nil {
		emitter = Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Reporter{runID: UUIDToBytes(runID), emitter: emitter, now: now}
}

// RunID returns the run this reporter is bound to.
func (r *Reporter) RunID() uuid.UUID {
	return uuid.UUID(r.runID)
}

func (r *Reporter) emit(evt Event) {
	if r == nil {
		return
	}
	evt.RunID = r.runID
	evt.TS = r.now().UTC()
	r.emitter.Emit(evt)
}

// RunStarted reports the start of a crawl over the given seed count.
func (r *Reporter) RunStarted(seeds int) {
	r.emit(Event{Stage: StageRunStart, Count: seeds})
}

// RunDone reports a finished run. A non-empty reason marks it as errored.
func (r *Reporter) RunDone(items int, dur time.Duration, reason string) {
	stage := StageRunDone
	if reason != "" {
		stage = StageRunError
	}
	r.emit(Event{Stage: stage, Count: items, Dur: dur, Reason: reason})
}

// ItemStarted reports that an item left the frontier.
func (r *Reporter) ItemStarted(item, kind string, depth int) {
	r.emit(Event{Stage: StageItemStarted, Item: item, Kind: kind, Depth: depth})
}

// ItemDone reports a stored item.
func (r *Reporter) ItemDone(item, kind string, depth int, bytes int64, dur time.Duration) {
	r.emit(Event{Stage: StageItemDone, Item: item, Kind: kind, Depth: depth, Bytes: bytes, Dur: dur})
}

// ItemFailed reports a failed item.
func (r *Reporter) ItemFailed(item, kind string, depth int, reason string, dur time.Duration) {
	if reason == "" {
		reason = "unknown"
	}
	r.emit(Event{Stage: StageItemFailed, Item: item, Kind: kind, Depth: depth, Reason: reason, Dur: dur})
}

// MediaStored reports a newly written media object.
func (r *Reporter) MediaStored(digest string, bytes int64) {
	r.emit(Event{Stage: StageMediaStored, Digest: digest, Bytes: bytes})
}
