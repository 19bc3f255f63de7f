package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/neehar-mavuduru/logring/dump"
	"github.com/neehar-mavuduru/logring/samlog"
)

// DefaultChunkSize bounds the bytes carried by one Tail message.
const DefaultChunkSize = 32 * 1024

var _ LogRingServer = (*Server)(nil)

// Server implements LogRingServer over a samlog.Manager.
type Server struct {
	manager   *samlog.Manager
	dumper    *dump.Writer // nil disables Dump
	log       *slog.Logger
	chunkSize int
}

// NewServer creates a Server. dumper may be nil.
func NewServer(manager *samlog.Manager, dumper *dump.Writer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		manager:   manager,
		dumper:    dumper,
		log:       log,
		chunkSize: DefaultChunkSize,
	}
}

func (s *Server) lookup(name string) (*samlog.Logger, error) {
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "ring name is required")
	}
	l, ok := s.manager.Lookup(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "ring %q not found", name)
	}
	return l, nil
}

// toStatus maps front-end errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, samlog.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, samlog.ErrDropped):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, samlog.ErrStalled):
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// Tail streams rendered records of one ring. Without follow it ends once the
// reader catches up with head; with follow it waits for new records until
// the client goes away.
func (s *Server) Tail(req *structpb.Struct, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	fields := req.GetFields()
	l, err := s.lookup(fields["ring"].GetStringValue())
	if err != nil {
		return err
	}
	follow := fields["follow"].GetBoolValue()

	sess, err := l.OpenSession(samlog.SessionOptions{
		Snapshot: fields["snapshot"].GetBoolValue(),
		Truncate: fields["truncate"].GetBoolValue(),
	})
	if err != nil {
		return toStatus(err)
	}
	defer sess.Close()

	ctx := stream.Context()
	buf := make([]byte, s.chunkSize)
	for {
		var n int
		if follow {
			n, err = sess.ReadContext(ctx, buf)
		} else {
			n, err = sess.Read(buf)
		}
		if n > 0 {
			if serr := stream.Send(wrapperspb.Bytes(buf[:n])); serr != nil {
				return serr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return toStatus(err)
		}
	}
}

// Dump writes a snapshot of the ring to the dump directory.
func (s *Server) Dump(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s.dumper == nil {
		return nil, status.Error(codes.FailedPrecondition, "dumps are not configured")
	}
	l, err := s.lookup(req.GetValue())
	if err != nil {
		return nil, err
	}
	path, size, err := s.dumper.WriteSnapshot(ctx, l)
	if err != nil {
		s.log.Error("dump failed", "ring", l.Name(), "error", err)
		return nil, toStatus(err)
	}
	s.log.Info("ring dumped on request", "ring", l.Name(), "path", path, "bytes", size)
	return wrapperspb.String(path), nil
}

// Inject writes one test_me line, creating the ring when needed.
func (s *Server) Inject(_ context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	fields := req.GetFields()
	name := fields["ring"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "ring name is required")
	}
	l, err := s.manager.Get(name)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	n, err := l.Write([]byte(fields["message"].GetStringValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

// Stats reports counters for every ring.
func (s *Server) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	rings := make(map[string]any)
	for name, st := range s.manager.StatsSnapshot() {
		rings[name] = map[string]any{
			"size":          st.Size,
			"records":       st.Records,
			"head":          int64(st.Head),
			"tail":          int64(st.Tail),
			"written":       st.Written,
			"wraps":         st.Wraps,
			"oos":           st.OOS,
			"free_bytes":    st.FreeBytes,
			"logged_bytes":  st.LoggedBytes,
			"total_logs":    st.TotalLogs,
			"dropped_logs":  st.DroppedLogs,
			"filtered_logs": st.FilteredLogs,
			"sessions":      st.Sessions,
		}
	}
	out, err := structpb.NewStruct(map[string]any{"rings": rings})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
