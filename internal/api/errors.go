package api

import (
	"context"
	"errors"

	"github.com/matheus3301/msgsync/internal/discussion"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors to gRPC codes: no network or a failed request
// is Unavailable, a server refusal is FailedPrecondition and anything else,
// storage included, is Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	var werr *remote.Error
	switch {
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, discussion.ErrUnknownView):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, discussion.ErrEmptyMessage), errors.Is(err, offline.ErrInvalidTarget):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, discussion.ErrClosed):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, sync.ErrOffline), remote.IsTransportError(err):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.As(err, &werr):
		return grpcstatus.Error(codes.FailedPrecondition, werr.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
