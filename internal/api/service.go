package api

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/discussion"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/outbox"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/status"
	"github.com/matheus3301/msgsync/internal/sync"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const watchBuffer = 256

// NetworkState reports the current connectivity state.
type NetworkState interface {
	Current() status.State
}

// Deps are the components the service talks to.
type Deps struct {
	Session session.Session
	Network NetworkState
	Queue   *offline.Queue
	Engine  *sync.Engine
	Sender  *outbox.Sender
	Views   *discussion.Manager
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Service implements MessagingServer.
type Service struct {
	d Deps
}

var _ MessagingServer = (*Service)(nil)

// NewService creates the service.
func NewService(d Deps) *Service {
	d.Logger = logging.OrNop(d.Logger).With(zap.String("component", "api"))
	return &Service{d: d}
}

func (s *Service) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	msgs, err := s.d.Queue.ListAll()
	if err != nil {
		return nil, toStatus(err)
	}
	counts := make(map[target.Target]int)
	for _, m := range msgs {
		counts[m.Target]++
	}
	reply := StatusReply{
		SiteID:  s.d.Session.SiteID,
		UserID:  s.d.Session.UserID,
		Network: string(s.d.Network.Current()),
		Queued:  len(msgs),
		Views:   s.d.Views.Len(),
	}
	for _, t := range offline.Targets(msgs) {
		ts := TargetStatus{Target: t.String(), Queued: counts[t], Syncing: s.d.Engine.IsSyncing(t)}
		if last, err := s.d.Engine.LastSync(t); err == nil && !last.IsZero() {
			ts.LastSyncMs = last.UnixMilli()
		}
		reply.Targets = append(reply.Targets, ts)
	}
	return Encode(reply)
}

func (s *Service) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "text is required")
	}

	var (
		res *outbox.Result
		err error
	)
	if req.View != "" {
		d, gerr := s.d.Views.Get(req.View)
		if gerr != nil {
			return nil, toStatus(gerr)
		}
		if req.Target != "" && req.Target != d.Target().String() {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "view %s is %s, not %s", req.View, d.Target(), req.Target)
		}
		res, err = d.Submit(ctx, req.Text)
	} else {
		t, perr := parseTarget(req.Target)
		if perr != nil {
			return nil, perr
		}
		res, err = s.d.Sender.Submit(ctx, t, req.Text, nil)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	reply := SubmitReply{ClientID: res.ClientID, Sent: res.Sent, Queued: res.Queued != nil}
	switch {
	case res.Message != nil:
		reply.MessageID = res.Message.ID
		reply.CreatedAt = res.Message.CreatedAt
	case res.Queued != nil:
		reply.CreatedAt = res.Queued.CreatedAt
	}
	return Encode(reply)
}

func (s *Service) SyncNow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SyncNowRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	t, err := parseTarget(req.Target)
	if err != nil {
		return nil, err
	}
	res, err := s.d.Engine.SyncTarget(ctx, t)
	if err != nil {
		return nil, toStatus(err)
	}
	return Encode(SyncReply{Results: []SyncResult{syncResult(res)}})
}

// SyncAll reports per-target failures in the reply instead of failing the
// call, since other targets may have synced.
func (s *Service) SyncAll(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SyncAllRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	results, err := s.d.Engine.SyncAll(ctx, req.OnlyDeviceOffline)
	reply := SyncReply{}
	for _, r := range results {
		reply.Results = append(reply.Results, syncResult(r))
	}
	if err != nil {
		s.d.Logger.Warn("sync all finished with errors", zap.Error(err))
		reply.Error = err.Error()
	}
	return Encode(reply)
}

func (s *Service) ListQueued(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	msgs, err := s.d.Queue.ListAll()
	if err != nil {
		return nil, toStatus(err)
	}
	reply := ListQueuedReply{}
	for _, m := range msgs {
		reply.Messages = append(reply.Messages, queuedMessage(m))
	}
	return Encode(reply)
}

func (s *Service) OpenDiscussion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OpenDiscussionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	t, err := parseTarget(req.Target)
	if err != nil {
		return nil, err
	}
	handle, d, err := s.d.Views.Open(ctx, t)
	if err != nil {
		return nil, toStatus(err)
	}
	return Encode(viewReply(handle, d.View()))
}

func (s *Service) FetchTranscript(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ViewRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	d, err := s.d.Views.Get(req.View)
	if err != nil {
		return nil, toStatus(err)
	}
	if req.Refresh {
		if err := d.Fetch(ctx, false); err != nil {
			return nil, toStatus(err)
		}
	}
	return Encode(viewReply(req.View, d.View()))
}

func (s *Service) LoadPrevious(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ViewRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	d, err := s.d.Views.Get(req.View)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := d.LoadPrevious(ctx); err != nil {
		return nil, toStatus(err)
	}
	return Encode(viewReply(req.View, d.View()))
}

func (s *Service) CloseDiscussion(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ViewRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.d.Views.Close(req.View); err != nil {
		return nil, toStatus(err)
	}
	return Encode(Empty{})
}

func (s *Service) SetForeground(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SetForegroundRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	d, err := s.d.Views.Get(req.View)
	if err != nil {
		return nil, toStatus(err)
	}
	d.SetForeground(req.Foreground)
	if req.Foreground {
		d.AcknowledgeNew()
	}
	return Encode(viewReply(req.View, d.View()))
}

func (s *Service) Watch(in *structpb.Struct, stream WatchServer) error {
	var req WatchRequest
	if err := decodeRequest(in, &req); err != nil {
		return err
	}

	var (
		ch    <-chan bus.Event
		unsub func()
	)
	if req.Target != "" {
		t, err := parseTarget(req.Target)
		if err != nil {
			return err
		}
		ch, unsub = s.d.Bus.SubscribeTarget(t, req.Prefix, watchBuffer)
	} else {
		ch, unsub = s.d.Bus.Subscribe(req.Prefix, watchBuffer)
	}
	defer unsub()

	s.d.Logger.Debug("watch started", zap.String("prefix", req.Prefix), zap.String("target", req.Target))
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := Encode(envelope(evt))
			if err != nil {
				s.d.Logger.Warn("drop event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func envelope(evt bus.Event) Envelope {
	env := Envelope{
		ID:           uuid.NewString(),
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
	}
	if !evt.Target.IsZero() {
		env.Target = evt.Target.String()
	}
	if evt.Payload != nil {
		if p, err := Encode(evt.Payload); err == nil {
			env.Payload = p.AsMap()
		}
	}
	return env
}

func decodeRequest(in *structpb.Struct, v any) error {
	if err := Decode(in, v); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	return nil
}

func parseTarget(s string) (target.Target, error) {
	t, err := target.Parse(s)
	if err != nil {
		return target.Target{}, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	return t, nil
}
