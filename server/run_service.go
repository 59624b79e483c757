package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/chainsaw/driver"
	"github.com/chazu/chainsaw/vm/dist"
)

// RunService evaluates programs on a hosted runtime. Globals and the heap
// persist between requests, so clients can build state incrementally.
type RunService struct {
	worker *RuntimeWorker
	out    *bytes.Buffer
}

// NewRunService creates a RunService. out must be the writer the
// runtime's print native was registered with; it is only touched on the
// worker goroutine.
func NewRunService(worker *RuntimeWorker, out *bytes.Buffer) *RunService {
	return &RunService{worker: worker, out: out}
}

// Handlers returns the connect routes for the service.
func (s *RunService) Handlers() map[string]http.Handler {
	return map[string]http.Handler{
		dist.RunProcedure: connect.NewUnaryHandler(
			dist.RunProcedure, s.Run, connect.WithCodec(dist.Codec{})),
		dist.HeapProcedure: connect.NewUnaryHandler(
			dist.HeapProcedure, s.Heap, connect.WithCodec(dist.Codec{})),
	}
}

// Run compiles and executes the request source. Compile and runtime errors
// are reported in the response, not as RPC failures.
func (s *RunService) Run(
	ctx context.Context,
	req *connect.Request[dist.RunRequest],
) (*connect.Response[dist.RunResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}

	result, err := s.worker.Do(ctx, func(d *driver.Driver) (any, error) {
		return s.run(ctx, d, source), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(result.(*dist.RunResponse)), nil
}

func (s *RunService) run(ctx context.Context, d *driver.Driver, source string) *dist.RunResponse {
	rt := d.Runtime()
	s.out.Reset()
	cycles, collected := rt.Metrics.TotalCycles, rt.Metrics.TotalCollected

	runErr := d.RunSource(ctx, source)

	resp := &dist.RunResponse{
		Success: runErr == nil,
		Output:  s.out.String(),
		Cycles:  rt.Metrics.TotalCycles - cycles,
		Freed:   rt.Metrics.TotalCollected - collected,
		Globals: dist.Globals(rt),
	}
	if runErr != nil {
		resp.Error = runErr.Error()
		log.Debugf("run failed: %v", runErr)
	}
	return resp
}

// Heap returns a snapshot of the hosted runtime between runs.
func (s *RunService) Heap(
	ctx context.Context,
	req *connect.Request[dist.HeapRequest],
) (*connect.Response[dist.HeapResponse], error) {
	result, err := s.worker.Do(ctx, func(d *driver.Driver) (any, error) {
		return dist.Snapshot(d.Runtime(), ""), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&dist.HeapResponse{Snapshot: result.(*dist.HeapSnapshot)}), nil
}
