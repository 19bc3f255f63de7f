package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TailOptions select what Tail streams.
type TailOptions struct {
	Ring     string
	Follow   bool
	Snapshot bool
	Truncate bool
}

// Client calls a LogRing server.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn // owned connection, nil when supplied by the caller
}

// Dial connects to a LogRing server at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection if the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Tail copies the rendered ring stream to w until the server ends it or ctx
// is done.
func (c *Client) Tail(ctx context.Context, opts TailOptions, w io.Writer) (int64, error) {
	req, err := structpb.NewStruct(map[string]any{
		"ring":     opts.Ring,
		"follow":   opts.Follow,
		"snapshot": opts.Snapshot,
		"truncate": opts.Truncate,
	})
	if err != nil {
		return 0, err
	}

	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], tailMethod)
	if err != nil {
		return 0, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.SendMsg(req); err != nil {
		return 0, err
	}
	if err := x.CloseSend(); err != nil {
		return 0, err
	}

	var total int64
	for {
		chunk, err := x.Recv()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk.GetValue())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

// Dump asks the server to write a snapshot of ring and returns its path.
func (c *Client) Dump(ctx context.Context, ring string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, dumpMethod, wrapperspb.String(ring), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Inject writes msg into ring as a test line.
func (c *Client) Inject(ctx context.Context, ring, msg string) (int64, error) {
	req, err := structpb.NewStruct(map[string]any{"ring": ring, "message": msg})
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, injectMethod, req, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Stats returns the per-ring counters keyed by ring name.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statsMethod, new(emptypb.Empty), out); err != nil {
		return nil, err
	}
	rings, _ := out.AsMap()["rings"].(map[string]any)
	return rings, nil
}
