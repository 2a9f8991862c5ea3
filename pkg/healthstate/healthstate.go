// Package healthstate exposes a single shared liveness flag that background
// loops (the invalidator, precomputer, averager, dispatcher) can flip to
// NOT_SERVING if they hit an unrecoverable error, independent of whether the
// process also runs a gRPC health endpoint. Generalized from
// pkg/server.GRPCServer's SERVING/NOT_SERVING toggle around
// grpc_health_v1.Health, which only a gRPC-serving process can use; this
// package lets any goroutine participate in the same liveness signal.
package healthstate

import "sync/atomic"

// Status mirrors grpc_health_v1.HealthCheckResponse_ServingStatus's two
// meaningful states without requiring an import of the gRPC health package.
type Status int32

const (
	Serving Status = iota
	NotServing
)

// State is a shared, concurrency-safe liveness flag.
type State struct {
	status atomic.Int32
	reason atomic.Value // string
}

// New creates a State that starts out Serving.
func New() *State {
	s := &State{}
	s.status.Store(int32(Serving))
	s.reason.Store("")
	return s
}

// MarkNotServing flips the state to NotServing and records why, for
// surfacing on a /status or health endpoint.
func (s *State) MarkNotServing(reason string) {
	s.reason.Store(reason)
	s.status.Store(int32(NotServing))
}

// MarkServing flips the state back to Serving, e.g. after a recovered loop
// restarts cleanly.
func (s *State) MarkServing() {
	s.reason.Store("")
	s.status.Store(int32(Serving))
}

// Status returns the current liveness status.
func (s *State) Status() Status {
	return Status(s.status.Load())
}

// Reason returns the last reason passed to MarkNotServing, empty if Serving.
func (s *State) Reason() string {
	v, _ := s.reason.Load().(string)
	return v
}

// IsServing is a convenience check equivalent to Status() == Serving.
func (s *State) IsServing() bool {
	return s.Status() == Serving
}
