package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

// ShardResult holds the counters of one shard.
type ShardResult struct {
	Shard int

	Lines       int // lines attempted
	Malformed   int // lines skipped as malformed records
	Rejected    int // lines whose variant the store refused
	Unprocessed int // lines never attempted because the shard stopped early

	VariantsWritten   int
	VariantsDuplicate int
	CallsWritten      int
	CallsDuplicate    int
	CallsOrphaned     int

	Warnings map[string]int // by error kind, malformed records included
	Errors   []string       // first messages, capped by the worker

	Err error // nil, or a *ShardError
}

// Worker ingests one shard sequentially.
type Worker struct {
	builder   *vcf.Builder
	client    store.Client
	limiter   *rate.Limiter
	retry     RetryPolicy
	maxErrors int
	logger    *zap.Logger
}

func (w *Worker) wait(ctx context.Context) error {
	if w.limiter == nil {
		return nil
	}
	return w.limiter.Wait(ctx)
}

func (w *Worker) note(res *ShardResult, err error) {
	res.Warnings[kindName(err)]++
	if len(res.Errors) < w.maxErrors {
		res.Errors = append(res.Errors, err.Error())
	}
}

// Run ingests shard. It never returns an error: failures are reported in
// the result so sibling shards keep running. Cancellation is observed
// between records; a record in flight is finished first.
func (w *Worker) Run(ctx context.Context, shard Shard) (res ShardResult) {
	res = ShardResult{Shard: shard.Index, Warnings: make(map[string]int)}
	line := 0

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("shard panicked", zap.Int("shard", shard.Index), zap.Any("panic", r))
			res.Err = &ShardError{Shard: shard.Index, Line: line, Err: fmt.Errorf("%w: %v", ErrShardPanic, r)}
		}
		res.Unprocessed = len(shard.Lines) - res.Lines
	}()

	for _, l := range shard.Lines {
		if ctx.Err() != nil {
			res.Err = &ShardError{Shard: shard.Index, Line: line, Err: ErrCancelled}
			return res
		}
		line = l.Number
		res.Lines++

		rec, err := w.builder.Build(l.Number, l.Text)
		if err != nil {
			res.Malformed++
			w.note(&res, err)
			continue
		}
		for _, warn := range rec.Warnings {
			w.note(&res, warn)
		}

		// The record is finished even if ctx is cancelled part-way.
		if err := w.writeRecord(context.WithoutCancel(ctx), rec, &res); err != nil {
			w.logger.Error("shard stopped",
				zap.Int("shard", shard.Index),
				zap.Int("line", l.Number),
				zap.Error(err))
			res.Err = &ShardError{Shard: shard.Index, Line: l.Number, Err: err}
			return res
		}
	}
	return res
}

func (w *Worker) writeRecord(ctx context.Context, rec *vcf.Record, res *ShardResult) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	out, err := write(ctx, w.retry, w.logger, "insert variant "+rec.Variant.Key, func() (store.Outcome, error) {
		return w.client.InsertVariant(ctx, rec.Variant)
	})
	if errors.Is(err, store.ErrRejected) {
		// Without its variant the record's calls are dropped too.
		res.Rejected++
		w.note(res, lineError(rec.Line, err))
		return nil
	}
	if err != nil {
		return err
	}
	switch out {
	case store.Created:
		res.VariantsWritten++
	case store.AlreadyExists:
		res.VariantsDuplicate++
	}

	for _, sc := range rec.Calls {
		if err := w.wait(ctx); err != nil {
			return err
		}
		out, err := write(ctx, w.retry, w.logger, "append call "+sc.SampleID, func() (store.Outcome, error) {
			return w.client.AppendCall(ctx, sc.SampleID, sc.Call)
		})
		if errors.Is(err, store.ErrRejected) {
			w.note(res, lineError(rec.Line, err))
			continue
		}
		if err != nil {
			return err
		}
		switch out {
		case store.Appended:
			res.CallsWritten++
		case store.AlreadyExists:
			res.CallsDuplicate++
		case store.NotFound:
			res.CallsOrphaned++
		}
	}
	return nil
}

func lineError(line int, err error) error {
	return fmt.Errorf("line %d: %w", line, err)
}

// unavailable reports whether a shard stopped on an exhausted retry budget.
func (r *ShardResult) unavailable() bool {
	return r.Err != nil && errors.Is(r.Err, store.ErrStoreUnavailable)
}
