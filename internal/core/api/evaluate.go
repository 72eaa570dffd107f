package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/types"
)

// Evaluate runs the active pipeline against {"inputs": {...}} or, batched,
// {"inputs_batch": [{...}, ...]}.
//
// A single evaluation failure is returned as a gRPC status. Batch items fail
// independently: each result carries either "context" or "error" and "code".
func (s *FormulaService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	single, hasSingle := fields["inputs"]
	batch, hasBatch := fields["inputs_batch"]

	switch {
	case hasSingle && hasBatch:
		return nil, status.Error(codes.InvalidArgument, "inputs and inputs_batch are mutually exclusive")
	case hasBatch:
		return s.evaluateBatch(ctx, batch)
	case !hasSingle:
		return nil, status.Error(codes.InvalidArgument, "inputs or inputs_batch required")
	}

	inputs := single.GetStructValue()
	if inputs == nil {
		return nil, status.Error(codes.InvalidArgument, "inputs must be an object")
	}

	p := s.Pipeline()
	res, err := s.evaluateOne(ctx, p, inputs.AsMap())
	if err != nil {
		return nil, toStatus(err)
	}
	res["config_checksum"] = p.Checksum
	return newStruct(res)
}

func (s *FormulaService) evaluateBatch(ctx context.Context, v *structpb.Value) (*structpb.Struct, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, status.Error(codes.InvalidArgument, "inputs_batch must be a list")
	}
	items := list.GetValues()
	// Reject batches exceeding max size
	if len(items) == 0 || len(items) > s.cfg.MaxBatchSize {
		return nil, status.Error(codes.InvalidArgument,
			fmt.Sprintf("batch size must be between 1 and %d, got %d", s.cfg.MaxBatchSize, len(items)))
	}

	// All items in a batch see the same pipeline even if it is swapped mid-request.
	p := s.Pipeline()
	results := make([]any, len(items))
	failed := 0

	for i, item := range items {
		inputs := item.GetStructValue()
		if inputs == nil {
			results[i] = failure(map[string]any{}, fmt.Errorf("%w: inputs_batch[%d] must be an object", errRequest, i))
			failed++
			continue
		}

		res, err := s.evaluateOne(ctx, p, inputs.AsMap())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, toStatus(err)
		}
		if err != nil {
			res = failure(res, err)
			failed++
		}
		results[i] = res
	}

	return newStruct(map[string]any{
		"config_checksum": p.Checksum,
		"results":         results,
		"failed_count":    failed,
	})
}

// evaluateOne evaluates and records one input set. The returned map carries
// the run id even when err is set.
func (s *FormulaService) evaluateOne(ctx context.Context, p *Pipeline, inputs types.Inputs) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	out, evalErr := p.Engine.Evaluate(inputs)
	elapsed := time.Since(start)

	run, err := db.NewRun(auth.ClientIDFromContext(ctx), p.Checksum, inputs, out, evalErr, elapsed)
	if err != nil {
		return map[string]any{}, fmt.Errorf("%w: %v", errRequest, err)
	}
	res := map[string]any{"run_id": string(run.RunID)}

	if s.recorder != nil {
		if err := s.recorder.RecordRun(ctx, run); err != nil {
			s.logger.Error().Err(err).Str("run_id", string(run.RunID)).Msg("failed to record run")
			return res, fmt.Errorf("%w: %v", errStore, err)
		}
	}
	if evalErr != nil {
		s.logger.Debug().Err(evalErr).Str("run_id", string(run.RunID)).Msg("evaluation failed")
		return res, evalErr
	}

	res["context"] = out.Map()
	res["order"] = stringList(out.Keys())
	return res, nil
}

func failure(res map[string]any, err error) map[string]any {
	if res == nil {
		res = map[string]any{}
	}
	res["error"] = err.Error()
	res["code"] = codeFor(err).String()
	return res
}

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return st, nil
}
