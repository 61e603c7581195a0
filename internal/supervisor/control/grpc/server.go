// Package grpc adapts package control's Server to the hand-mirrored
// SupervisorServiceServer, translating validation failures and lookup
// errors to grpc status codes the way the teacher's jobworker/grpc.JobWorker
// does for its own service.
package grpc

import (
	"context"
	"errors"
	"os"

	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/supervisor/control"
	"github.com/tjper/initd/internal/validator"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "grpc")

var _ SupervisorServiceServer = (*Supervisor)(nil)

// Supervisor implements SupervisorServiceServer over a control.Server.
type Supervisor struct {
	UnimplementedSupervisorServiceServer
	svc *control.Server
}

// NewSupervisor creates a Supervisor instance.
func NewSupervisor(svc *control.Server) *Supervisor {
	return &Supervisor{svc: svc}
}

func (s *Supervisor) EmitEvent(ctx context.Context, req *EmitEventRequest) (*EmitEventResponse, error) {
	valid := validator.New()
	valid.Assert(req.Name != "", "name empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if _, err := s.svc.EmitEvent(ctx, control.EmitEventRequest{
		Name: req.Name,
		Env:  req.Env,
		Wait: req.Wait,
	}); err != nil {
		if errors.Is(err, validator.ErrInvalidInput) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, toStatus(err)
	}
	return &EmitEventResponse{}, nil
}

func (s *Supervisor) Start(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	valid := validator.New()
	valid.Assert(req.Name != "", "name empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.svc.Start(ctx, control.StartRequest{
		Session: req.Session,
		Name:    req.Name,
		Env:     req.Env,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &StartResponse{Instance: toWireDetail(resp.Instance)}, nil
}

func (s *Supervisor) Stop(ctx context.Context, req *StopRequest) (*StopResponse, error) {
	valid := validator.New()
	valid.Assert(req.Name != "", "name empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.svc.Stop(ctx, control.StopRequest{
		Session:  req.Session,
		Name:     req.Name,
		Instance: req.Instance,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &StopResponse{Instance: toWireDetail(resp.Instance)}, nil
}

func (s *Supervisor) Restart(ctx context.Context, req *RestartRequest) (*RestartResponse, error) {
	valid := validator.New()
	valid.Assert(req.Name != "", "name empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.svc.Restart(ctx, control.RestartRequest{
		Session:  req.Session,
		Name:     req.Name,
		Instance: req.Instance,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &RestartResponse{Instance: toWireDetail(resp.Instance)}, nil
}

func (s *Supervisor) GetInstance(ctx context.Context, req *GetInstanceRequest) (*GetInstanceResponse, error) {
	valid := validator.New()
	valid.Assert(req.Path != "", "path empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.svc.GetInstance(ctx, control.GetInstanceRequest{Path: req.Path})
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetInstanceResponse{Instance: toWireDetail(resp.Instance)}, nil
}

func (s *Supervisor) GetInstanceByName(ctx context.Context, req *GetInstanceByNameRequest) (*GetInstanceResponse, error) {
	valid := validator.New()
	valid.Assert(req.Name != "", "name empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.svc.GetInstanceByName(ctx, control.GetInstanceByNameRequest{
		Session:  req.Session,
		Name:     req.Name,
		Instance: req.Instance,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetInstanceResponse{Instance: toWireDetail(resp.Instance)}, nil
}

func (s *Supervisor) GetAllInstances(ctx context.Context, req *GetAllInstancesRequest) (*GetAllInstancesResponse, error) {
	resp, err := s.svc.GetAllInstances(ctx, control.GetAllInstancesRequest{Session: req.Session})
	if err != nil {
		return nil, toStatus(err)
	}
	out := &GetAllInstancesResponse{Instances: make([]InstanceDetail, 0, len(resp.Instances))}
	for _, d := range resp.Instances {
		out.Instances = append(out.Instances, toWireDetail(d))
	}
	return out, nil
}

func (s *Supervisor) Watch(req *WatchRequest, stream SupervisorService_WatchServer) error {
	ctx := stream.Context()
	notifications := s.svc.Watch(ctx, control.WatchRequest{Session: req.Session})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if err := stream.Send(&Notification{
				Kind:      n.Kind.String(),
				Class:     n.Class,
				Session:   n.Session,
				Instance:  n.Instance,
				Timestamp: n.Timestamp.Unix(),
			}); err != nil {
				logger.Errorf("send watch notification; error: %s", err)
				return status.Error(codes.Internal, "send notification")
			}
		}
	}
}

// toStatus maps package control's sentinel errors to grpc status codes, the
// same translation style as the teacher's JobWorker handlers.
func toStatus(err error) error {
	var notFound control.ErrNotFound
	if errors.As(err, &notFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	var unknownInstance control.ErrUnknownInstance
	if errors.As(err, &unknownInstance) {
		return status.Error(codes.NotFound, err.Error())
	}
	var noClass control.ErrNoClass
	if errors.As(err, &noClass) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	var alreadyStarted control.ErrAlreadyStarted
	if errors.As(err, &alreadyStarted) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	var alreadyStopped control.ErrAlreadyStopped
	if errors.As(err, &alreadyStopped) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func toWireDetail(d control.InstanceDetail) InstanceDetail {
	return InstanceDetail{
		Path:     d.Path,
		Session:  d.Session,
		Class:    d.Class,
		Instance: d.Instance,
		Goal:     d.Goal,
		State:    d.State,
		Failed:   d.Failed,
		ExitCode: d.ExitCode,
		PIDs:     d.PIDs,
	}
}
