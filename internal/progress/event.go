// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the crawl engine uses to report run progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// structured logs or Prometheus collectors.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageListing  Stage = "LISTING_PAGE"
	StageItem     Stage = "ITEM"
	StageImage    Stage = "IMAGE"
	StageNotify   Stage = "NOTIFY"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Outcome classifies how an item, image, or notification was handled.
type Outcome string

// Supported outcomes per stage: items are created, updated, or skipped;
// images are stored or skipped; notifications are sent or failed.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeStored  Outcome = "stored"
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// JobID identifies the run, matching the scraping_jobs row.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Locale scopes listing and item events to a storefront pass.
	Locale string
	// URL is the optional page or image URL.
	URL string
	// Outcome classifies item, image, and notify events.
	Outcome Outcome
	// Count carries stage-specific totals: links found on a listing page,
	// images stored for a product, or the final product count of a run.
	Count int64
	// Dur captures execution latency where the emitter measured one.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageListing:
		if e.Locale == "" {
			return errors.New("listing event requires locale")
		}
	case StageItem:
		if e.Locale == "" {
			return errors.New("item event requires locale")
		}
		if e.Outcome == "" {
			return errors.New("item event requires outcome")
		}
	case StageImage, StageNotify:
		if e.Outcome == "" {
			return fmt.Errorf("%s event requires outcome", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Count < 0 {
		return errors.New("count must be >= 0")
	}
	return nil
}
