package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"databd/models"
	"databd/storage"
)

// ErrUnknownSource reports a source id missing from the configured registry.
var ErrUnknownSource = errors.New("unknown source")

// Ingest runs the session-scoped persistence flow for one scrape batch:
// open a session, upsert every observation, close the session with final
// counts, and fold the new/updated tallies into that day's statistics row.
type Ingest struct {
	store   storage.Store
	sources map[string]bool
}

// NewIngest creates the service. An empty sources list disables the
// registry check and accepts any source.
func NewIngest(store storage.Store, sources []string) *Ingest {
	known := make(map[string]bool, len(sources))
	for _, id := range sources {
		known[id] = true
	}
	return &Ingest{store: store, sources: known}
}

// Report is the outcome of one ingested batch.
type Report struct {
	SessionID string
	Parsed    int
	Saved     int
	New       int
	Updated   int
	Skipped   int
}

// Run ingests a batch under a fresh parsing session. Observations that fail
// validation are skipped and counted; a storage failure aborts the batch and
// leaves the session running for the operator to inspect.
func (s *Ingest) Run(ctx context.Context, source, notes string, batch []models.Listing) (*Report, error) {
	if len(s.sources) > 0 && !s.sources[source] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	day := time.Now().Format(storage.DateLayout)

	sessionID, err := s.store.StartSession(ctx, source, notes)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	report := &Report{SessionID: sessionID}
	for i := range batch {
		l := batch[i]
		report.Parsed++

		created, err := s.store.SaveListing(ctx, &l)
		if errors.Is(err, storage.ErrValidation) {
			report.Skipped++
			log.Printf("Skipping listing %q from %s: %v", l.ID, source, err)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("save listing %s: %w", l.ID, err)
		}

		report.Saved++
		if created {
			report.New++
		} else {
			report.Updated++
		}
	}

	if err := s.store.FinishSession(ctx, sessionID, report.Parsed, report.Saved); err != nil {
		return report, fmt.Errorf("finish session: %w", err)
	}
	if err := s.store.BumpDailyCounts(ctx, day, report.New, report.Updated); err != nil {
		return report, fmt.Errorf("record daily counts: %w", err)
	}

	log.Printf("Session %s: %d parsed, %d saved (%d new, %d updated, %d skipped)",
		sessionID, report.Parsed, report.Saved, report.New, report.Updated, report.Skipped)
	return report, nil
}

// Retire closes listings that disappeared from their source. Ads already
// gone from the table are ignored.
func (s *Ingest) Retire(ctx context.Context, ids []string) (int, error) {
	closed := 0
	for _, id := range ids {
		err := s.store.MarkListingClosed(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return closed, fmt.Errorf("close listing %s: %w", id, err)
		}
		closed++
	}
	return closed, nil
}
