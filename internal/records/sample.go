package records

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
)

var sampleEpoch = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// sampleSnapshots are served when no database is attached.
var sampleSnapshots = []Snapshot{
	{
		ID:          "0190c3a0-0000-7000-8000-000000000001",
		URL:         "https://example.com/",
		FinalURL:    "https://example.com/",
		StatusCode:  200,
		Title:       "Example Domain",
		ContentHash: "ea8fac7c65fb589b0d53560f5251f74f9e9b243478dcb6b3ea79b5e36449c8d9",
		Bytes:       1256,
		RenderedAt:  sampleEpoch,
		Sample:      true,
	},
	{
		ID:          "0190c3a0-0000-7000-8000-000000000002",
		URL:         "https://example.org/pricing",
		FinalURL:    "https://example.org/pricing/",
		StatusCode:  200,
		Title:       "Pricing",
		ContentHash: "5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef",
		Bytes:       48211,
		RenderedAt:  sampleEpoch.Add(-time.Hour),
		Sample:      true,
	},
}

// SampleStore stands in for the database in degraded mode. Writes fail with
// ErrUnavailable; reads return fixed sample data.
type SampleStore struct {
	reason string
	logger *zap.Logger
	once   sync.Once
}

// NewSampleStore records why no database is attached.
func NewSampleStore(reason string, logger *zap.Logger) *SampleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampleStore{reason: reason, logger: logger}
}

// Reason is why the store is degraded.
func (s *SampleStore) Reason() string {
	return s.reason
}

// Save implements Store.
func (s *SampleStore) Save(context.Context, Snapshot) error {
	return s.Unavailable()
}

// Unavailable signals a rejected write and returns ErrUnavailable. Callers use
// it to refuse work that could only end in a Save.
func (s *SampleStore) Unavailable() error {
	s.warn()
	return ErrUnavailable
}

// Recent implements Store.
func (s *SampleStore) Recent(_ context.Context, limit int) ([]Snapshot, error) {
	s.warn()
	limit = ClampLimit(limit)
	if limit > len(sampleSnapshots) {
		limit = len(sampleSnapshots)
	}
	out := make([]Snapshot, limit)
	copy(out, sampleSnapshots[:limit])
	return out, nil
}

func (s *SampleStore) warn() {
	metrics.ObserveCapabilityUnavailable("records")
	s.once.Do(func() {
		s.logger.Warn("DEGRADED MODE: records are not persisted, serving sample data",
			zap.String("reason", s.reason))
	})
}
