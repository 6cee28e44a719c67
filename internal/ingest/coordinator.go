package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

// State is the lifecycle phase of a Coordinator.
type State int

const (
	Idle State = iota
	ParsingHeader
	BuildingIndex
	Sharding
	Ingesting
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:          "idle",
	ParsingHeader: "parsing_header",
	BuildingIndex: "building_index",
	Sharding:      "sharding",
	Ingesting:     "ingesting",
	Completed:     "completed",
	Failed:        "failed",
	Cancelled:     "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// DefaultMaxReportedErrors caps the messages kept in a Summary.
const DefaultMaxReportedErrors = 20

// Options configures a run.
type Options struct {
	Workers           int      // default runtime.NumCPU()
	WritesPerSecond   float64  // shared across workers; 0 disables the limit
	Samples           []string // restrict ingestion to these samples; empty means all
	MaxReportedErrors int      // default DefaultMaxReportedErrors
	Retry             RetryPolicy
}

// Coordinator drives one ingestion run from header to final summary.
type Coordinator struct {
	client store.Client
	opts   Options
	logger *zap.Logger

	mu      sync.RWMutex
	state   State
	started bool
}

// NewCoordinator creates a coordinator writing to client.
func NewCoordinator(client store.Client, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxReportedErrors <= 0 {
		opts.MaxReportedErrors = DefaultMaxReportedErrors
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Coordinator{
		client: client,
		opts:   opts,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for state transitions and shard failures.
func (c *Coordinator) SetLogger(l *zap.Logger) {
	c.logger = l
}

// State returns the current state. It is safe to call concurrently with Run.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) transition(sum *Summary, to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	sum.State = to
	c.logger.Info("state transition",
		zap.String("run_id", sum.RunID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// Run ingests the file at path ("-" for stdin). The returned summary is
// never nil. The error is non-nil when the run ends Failed or Cancelled.
func (c *Coordinator) Run(ctx context.Context, path string) (*Summary, error) {
	c.mu.Lock()
	if c.started {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("coordinator already ran (state %s)", state)
	}
	c.started = true
	c.mu.Unlock()

	sum := newSummary(c.opts.MaxReportedErrors)
	sum.Workers = c.opts.Workers
	logger := c.logger.With(zap.String("run_id", sum.RunID))

	err := c.run(ctx, path, sum, logger)
	sum.Elapsed = time.Since(sum.Started)

	switch {
	case err != nil && ctx.Err() != nil:
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		c.transition(sum, Cancelled)
	case err != nil:
		logger.Error("ingestion failed", zap.Error(err))
		c.transition(sum, Failed)
	default:
		c.transition(sum, Completed)
	}

	if rr, ok := c.client.(store.RunRecorder); ok {
		if rerr := rr.RecordRun(context.WithoutCancel(ctx), sum.record()); rerr != nil {
			logger.Warn("record run", zap.Error(rerr))
		}
	}
	return sum, err
}

func cancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, path string, sum *Summary, logger *zap.Logger) error {
	c.transition(sum, ParsingHeader)
	if err := cancelled(ctx); err != nil {
		return err
	}

	p, err := vcf.NewParser(path)
	if err != nil {
		if errors.Is(err, vcf.ErrMissingColumnHeader) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	defer p.Close()

	sum.Input = store.FileFingerprint{Path: path}
	if path != "-" {
		if fp, err := store.StatFile(path); err == nil {
			sum.Input = fp
		}
	}

	reg := vcf.NewRegistry()
	warnings, err := vcf.LoadDirectives(reg, p.Header().Meta)
	if err != nil {
		return fmt.Errorf("load directives: %w", err)
	}
	for _, w := range warnings {
		sum.note(kindName(w), w.Error())
	}
	info, alt := reg.Len()
	logger.Info("header parsed",
		zap.Int("info_fields", info),
		zap.Int("alt_fields", alt),
		zap.Int("warnings", len(warnings)))

	body, err := p.ReadBody()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}

	c.transition(sum, BuildingIndex)
	if err := cancelled(ctx); err != nil {
		return err
	}

	samples := vcf.NewSampleIndex(p.Header().Columns.Text)
	reg.Freeze()
	builder, err := vcf.NewBuilder(reg, samples)
	if err != nil {
		return err
	}
	builder.SetSampleFilter(c.opts.Samples)
	for _, id := range c.opts.Samples {
		if !samples.Contains(id) {
			sum.note("unknown_sample", fmt.Sprintf("selected sample %s is not in the column header", id))
		}
	}

	if err := c.prepareStore(ctx, samples, builder, sum, logger); err != nil {
		return err
	}

	c.transition(sum, Sharding)
	if err := cancelled(ctx); err != nil {
		return err
	}

	lines := make([]vcf.Line, 0, len(body))
	for _, l := range body {
		if strings.HasPrefix(l.Text, "#") {
			sum.LinesRead++
			sum.LinesSkipped++
			continue
		}
		lines = append(lines, l)
	}
	shards := PlanShards(lines, c.opts.Workers)
	sum.Shards = len(shards)
	logger.Info("planned shards",
		zap.Int("lines", len(lines)),
		zap.Int("shards", len(shards)))

	c.transition(sum, Ingesting)
	if err := cancelled(ctx); err != nil {
		return err
	}

	results := c.dispatch(ctx, builder, shards, logger)
	unavailable := 0
	for _, r := range results {
		sum.merge(r)
		if r.unavailable() {
			unavailable++
		}
	}

	c.readTotals(ctx, sum, logger)

	if err := cancelled(ctx); err != nil {
		return err
	}
	if len(shards) > 0 && unavailable == len(shards) {
		return fmt.Errorf("all %d shards failed: %w", len(shards), store.ErrStoreUnavailable)
	}
	return nil
}

// prepareStore acquires the collections, declares the key indexes and
// creates the selected samples.
func (c *Coordinator) prepareStore(ctx context.Context, samples *vcf.SampleIndex, builder *vcf.Builder, sum *Summary, logger *zap.Logger) error {
	for _, name := range []string{store.Samples, store.Variants} {
		info, err := write(ctx, c.opts.Retry, logger, "acquire "+name, func() (store.CollectionInfo, error) {
			return store.Acquire(ctx, c.client, name)
		})
		if err != nil {
			return err
		}
		logger.Info("acquired collection",
			zap.String("collection", info.Name),
			zap.Int64("documents", info.Documents))
	}

	indexes := []struct{ collection, field string }{
		{store.Samples, store.SampleKeyField},
		{store.Variants, store.VariantKeyField},
	}
	for _, ix := range indexes {
		if _, err := write(ctx, c.opts.Retry, logger, "index "+ix.collection, func() (struct{}, error) {
			return struct{}{}, c.client.EnsureIndex(ctx, ix.collection, ix.field, true)
		}); err != nil {
			return err
		}
	}

	for _, id := range samples.IDs() {
		if !builder.Selected(id) {
			continue
		}
		out, err := write(ctx, c.opts.Retry, logger, "insert sample "+id, func() (store.Outcome, error) {
			return c.client.InsertSample(ctx, id)
		})
		if err != nil {
			return err
		}
		if out == store.AlreadyExists {
			sum.SamplesExisting++
			logger.Debug("sample already exists", zap.String("sample", id))
			continue
		}
		sum.SamplesCreated++
	}
	return nil
}

// dispatch runs one worker per shard and waits for all of them.
func (c *Coordinator) dispatch(ctx context.Context, builder *vcf.Builder, shards []Shard, logger *zap.Logger) []ShardResult {
	var limiter *rate.Limiter
	if c.opts.WritesPerSecond > 0 {
		burst := max(1, int(c.opts.WritesPerSecond))
		limiter = rate.NewLimiter(rate.Limit(c.opts.WritesPerSecond), burst)
	}

	results := make([]ShardResult, len(shards))
	var g errgroup.Group
	for i, shard := range shards {
		w := &Worker{
			builder:   builder,
			client:    c.client,
			limiter:   limiter,
			retry:     c.opts.Retry,
			maxErrors: c.opts.MaxReportedErrors,
			logger:    logger.With(zap.Int("shard", shard.Index)),
		}
		g.Go(func() error {
			results[i] = w.Run(ctx, shard)
			return nil
		})
	}
	// Workers report failures in their results, never through the group.
	_ = g.Wait()
	return results
}

// readTotals records the final document counts. Failures are logged only.
func (c *Coordinator) readTotals(ctx context.Context, sum *Summary, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if info, err := c.client.Collection(ctx, store.Samples); err == nil {
		sum.StoredSamples = info.Documents
	} else {
		logger.Warn("count samples", zap.Error(err))
	}
	if info, err := c.client.Collection(ctx, store.Variants); err == nil {
		sum.StoredVariants = info.Documents
	} else {
		logger.Warn("count variants", zap.Error(err))
	}
}
