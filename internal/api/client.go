package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return conn, nil
}

// Client is a typed Messaging client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return err
	}
	return Decode(out, reply)
}

func (c *Client) Status(ctx context.Context) (*StatusReply, error) {
	var reply StatusReply
	if err := c.invoke(ctx, "Status", StatusRequest{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitReply, error) {
	var reply SubmitReply
	if err := c.invoke(ctx, "Submit", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) SyncNow(ctx context.Context, target string) (*SyncReply, error) {
	var reply SyncReply
	if err := c.invoke(ctx, "SyncNow", SyncNowRequest{Target: target}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) SyncAll(ctx context.Context, onlyDeviceOffline bool) (*SyncReply, error) {
	var reply SyncReply
	if err := c.invoke(ctx, "SyncAll", SyncAllRequest{OnlyDeviceOffline: onlyDeviceOffline}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) ListQueued(ctx context.Context) ([]QueuedMessage, error) {
	var reply ListQueuedReply
	if err := c.invoke(ctx, "ListQueued", ListQueuedRequest{}, &reply); err != nil {
		return nil, err
	}
	return reply.Messages, nil
}

func (c *Client) OpenDiscussion(ctx context.Context, target string) (*ViewReply, error) {
	var reply ViewReply
	if err := c.invoke(ctx, "OpenDiscussion", OpenDiscussionRequest{Target: target}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) FetchTranscript(ctx context.Context, view string, refresh bool) (*ViewReply, error) {
	var reply ViewReply
	if err := c.invoke(ctx, "FetchTranscript", ViewRequest{View: view, Refresh: refresh}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) LoadPrevious(ctx context.Context, view string) (*ViewReply, error) {
	var reply ViewReply
	if err := c.invoke(ctx, "LoadPrevious", ViewRequest{View: view}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) CloseDiscussion(ctx context.Context, view string) error {
	return c.invoke(ctx, "CloseDiscussion", ViewRequest{View: view}, &Empty{})
}

func (c *Client) SetForeground(ctx context.Context, view string, foreground bool) (*ViewReply, error) {
	var reply ViewReply
	if err := c.invoke(ctx, "SetForeground", SetForegroundRequest{View: view, Foreground: foreground}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Watcher receives events from a Watch stream.
type Watcher struct {
	stream grpc.ClientStream
}

// Watch opens an event stream. It ends when ctx is cancelled.
func (c *Client) Watch(ctx context.Context, req WatchRequest) (*Watcher, error) {
	in, err := Encode(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Watch"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Watcher{stream: stream}, nil
}

// Recv blocks for the next event.
func (w *Watcher) Recv() (*Envelope, error) {
	out := new(structpb.Struct)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	var env Envelope
	if err := Decode(out, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
