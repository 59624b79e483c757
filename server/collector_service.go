package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"connectrpc.com/connect"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/vm/dist"
)

// CollectorService answers remote collection requests with a local
// Collector, typically a terminal prompt. Requests are handled one at a
// time.
type CollectorService struct {
	mu        sync.Mutex
	collector collector.Collector
	cycles    int
}

// NewCollectorService creates a CollectorService backed by c.
func NewCollectorService(c collector.Collector) *CollectorService {
	return &CollectorService{collector: c}
}

// Handler returns the connect route for the service.
func (s *CollectorService) Handler() (string, http.Handler) {
	return dist.CollectProcedure, connect.NewUnaryHandler(
		dist.CollectProcedure,
		s.Collect,
		connect.WithCodec(dist.Codec{}),
	)
}

// Collect marks the snapshot in the request.
func (s *CollectorService) Collect(
	ctx context.Context,
	req *connect.Request[dist.CollectRequest],
) (*connect.Response[dist.CollectResponse], error) {
	snap := req.Msg.Snapshot
	if snap == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("snapshot is required"))
	}
	if snap.CycleID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("cycle id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Infof("cycle %s from %s: %d slots, suspended at %04d", snap.CycleID, req.Peer().Addr, snap.Size(), snap.IP)
	marks, err := s.collector.Collect(ctx, snap)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, connect.NewError(connect.CodeCanceled, err)
		}
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("collector: %w", err))
	}
	if len(marks) != snap.Size() {
		return nil, connect.NewError(connect.CodeInternal,
			fmt.Errorf("collector returned %d marks for %d slots", len(marks), snap.Size()))
	}
	s.cycles++
	return connect.NewResponse(&dist.CollectResponse{CycleID: snap.CycleID, Keep: marks}), nil
}

// Cycles returns how many collections the service has answered.
func (s *CollectorService) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}
