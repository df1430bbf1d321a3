package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamsim/batchfeed/feed/metrics"
	"github.com/streamsim/batchfeed/feed/tracker"
)

// SchedulerConfig holds the per-run settings of a Scheduler.
type SchedulerConfig struct {
	Policy   ArrivalPolicy
	Interval time.Duration // wait between ticks; zero emits back to back
	Stop     int           // number of ticks
	Env      string        // environment tag written to tracker records
	Seed     int64
}

// TickResult describes one completed tick.
type TickResult struct {
	BatchID  int64
	Size     int
	Artifact ArtifactRef
}

// RunSummary describes the ticks a run completed. On error it holds the ticks
// completed before the failure.
type RunSummary struct {
	RunID string
	Seed  int64
	Ticks []TickResult
}

// Records returns the total number of records emitted.
func (s RunSummary) Records() int {
	n := 0
	for _, t := range s.Ticks {
		n += t.Size
	}
	return n
}

// Bytes returns the total artifact bytes written.
func (s RunSummary) Bytes() int64 {
	var n int64
	for _, t := range s.Ticks {
		n += t.Artifact.Bytes
	}
	return n
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithMetrics attaches a prometheus recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// WithClock replaces the wall clock and the inter-arrival sleep.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// Scheduler drives a run: for Stop ticks it waits, sizes, logs, samples and emits.
//
// Per tick the order is fixed: the tracker record is appended before the
// artifact is written, so a crash in between leaves a logged tick without an
// artifact. Thread-safety: NOT thread-safe; Run must be called once.
type Scheduler struct {
	cfg     SchedulerConfig
	pool    *Pool
	emitter *Emitter
	tracker *tracker.Tracker
	rng     *PartitionedRNG
	state   PolicyState
	runID   string
	metrics *metrics.Recorder
	log     *logrus.Entry
	now     func() time.Time
	sleep   func(time.Duration)
}

// NewScheduler validates cfg and wires the run's collaborators.
func NewScheduler(cfg SchedulerConfig, pool *Pool, emitter *Emitter, tr *tracker.Tracker, opts ...Option) (*Scheduler, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("%w: arrival policy is required", ErrInvalidConfig)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("%w: interval must be non-negative, got %v", ErrInvalidConfig, cfg.Interval)
	}
	if cfg.Stop <= 0 {
		return nil, fmt.Errorf("%w: stop must be positive, got %d", ErrInvalidConfig, cfg.Stop)
	}
	if err := CheckHorizon(cfg.Policy, cfg.Stop); err != nil {
		return nil, err
	}
	if pool == nil || pool.Len() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, ErrEmptyPool)
	}
	if emitter == nil || tr == nil {
		return nil, fmt.Errorf("%w: emitter and tracker are required", ErrInvalidConfig)
	}

	runID := "run_" + uuid.New().String()
	s := &Scheduler{
		cfg:     cfg,
		pool:    pool,
		emitter: emitter,
		tracker: tr,
		rng:     NewPartitionedRNG(cfg.Seed),
		runID:   runID,
		log:     logrus.WithField("run_id", runID),
		now:     time.Now,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunID returns the identifier attached to this run's log lines.
func (s *Scheduler) RunID() string { return s.runID }

// Run executes every tick in sequence. Any error aborts the run immediately;
// ticks already completed stay on disk.
func (s *Scheduler) Run() (RunSummary, error) {
	summary := RunSummary{RunID: s.runID, Seed: s.cfg.Seed}
	s.log.Infof("Starting feed: policy=%v interval=%v stop=%d pool=%d seed=%d",
		s.cfg.Policy, s.cfg.Interval, s.cfg.Stop, s.pool.Len(), s.cfg.Seed)

	batchID := int64(1)
	for remaining := s.cfg.Stop; remaining > 0; remaining-- {
		if batchID > 1 {
			s.sleep(s.cfg.Interval)
		}
		res, err := s.tick(batchID)
		if err != nil {
			s.log.WithField("batch_id", batchID).Errorf("Run aborted after %d of %d ticks: %v",
				len(summary.Ticks), s.cfg.Stop, err)
			return summary, err
		}
		summary.Ticks = append(summary.Ticks, res)
		batchID++
	}

	s.log.Infof("Feed complete: %d batches, %d records, %s",
		len(summary.Ticks), summary.Records(), humanize.Bytes(uint64(summary.Bytes())))
	return summary, nil
}

func (s *Scheduler) tick(batchID int64) (TickResult, error) {
	started := s.now()
	size := NextSize(s.cfg.Policy, int(batchID), &s.state, s.rng.ForSubsystem(SubsystemPolicy))

	if err := s.tracker.Append(tracker.NewRecord(batchID, size, started, s.cfg.Env)); err != nil {
		return TickResult{}, fmt.Errorf("logging batch %d: %w", batchID, err)
	}

	records, err := Draw(s.pool, size, s.rng.ForSubsystem(SubsystemSampler))
	if err != nil {
		return TickResult{}, fmt.Errorf("sampling batch %d: %w", batchID, err)
	}

	ref, err := s.emitter.Emit(Batch{ID: batchID, Records: records})
	if err != nil {
		if errors.Is(err, ErrArtifactExists) {
			s.metrics.ObserveCollision()
		}
		return TickResult{}, err
	}

	s.metrics.ObserveEmit(batchID, ref.Records, ref.Bytes, s.now().Sub(started))
	s.log.WithField("batch_id", batchID).Infof("Pushed batch %d: %d records, %s",
		batchID, size, humanize.Bytes(uint64(ref.Bytes)))
	return TickResult{BatchID: batchID, Size: size, Artifact: ref}, nil
}
