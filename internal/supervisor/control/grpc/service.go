package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// This is a compile-time assertion that this hand-authored service remains
// compatible with the grpc package it is compiled against, mirroring the
// assertion protoc-gen-go-grpc itself emits.
const _ = grpc.SupportPackageIsVersion7

// SupervisorServiceClient is the client API for SupervisorService.
type SupervisorServiceClient interface {
	EmitEvent(ctx context.Context, in *EmitEventRequest, opts ...grpc.CallOption) (*EmitEventResponse, error)
	Start(ctx context.Context, in *StartRequest, opts ...grpc.CallOption) (*StartResponse, error)
	Stop(ctx context.Context, in *StopRequest, opts ...grpc.CallOption) (*StopResponse, error)
	Restart(ctx context.Context, in *RestartRequest, opts ...grpc.CallOption) (*RestartResponse, error)
	GetInstance(ctx context.Context, in *GetInstanceRequest, opts ...grpc.CallOption) (*GetInstanceResponse, error)
	GetInstanceByName(ctx context.Context, in *GetInstanceByNameRequest, opts ...grpc.CallOption) (*GetInstanceResponse, error)
	GetAllInstances(ctx context.Context, in *GetAllInstancesRequest, opts ...grpc.CallOption) (*GetAllInstancesResponse, error)
	Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (SupervisorService_WatchClient, error)
}

type supervisorServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSupervisorServiceClient(cc grpc.ClientConnInterface) SupervisorServiceClient {
	return &supervisorServiceClient{cc}
}

func (c *supervisorServiceClient) EmitEvent(ctx context.Context, in *EmitEventRequest, opts ...grpc.CallOption) (*EmitEventResponse, error) {
	out := new(EmitEventResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/EmitEvent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) Start(ctx context.Context, in *StartRequest, opts ...grpc.CallOption) (*StartResponse, error) {
	out := new(StartResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/Start", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) Stop(ctx context.Context, in *StopRequest, opts ...grpc.CallOption) (*StopResponse, error) {
	out := new(StopResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/Stop", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) Restart(ctx context.Context, in *RestartRequest, opts ...grpc.CallOption) (*RestartResponse, error) {
	out := new(RestartResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/Restart", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) GetInstance(ctx context.Context, in *GetInstanceRequest, opts ...grpc.CallOption) (*GetInstanceResponse, error) {
	out := new(GetInstanceResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/GetInstance", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) GetInstanceByName(ctx context.Context, in *GetInstanceByNameRequest, opts ...grpc.CallOption) (*GetInstanceResponse, error) {
	out := new(GetInstanceResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/GetInstanceByName", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) GetAllInstances(ctx context.Context, in *GetAllInstancesRequest, opts ...grpc.CallOption) (*GetAllInstancesResponse, error) {
	out := new(GetAllInstancesResponse)
	if err := c.cc.Invoke(ctx, "/initd.v1.SupervisorService/GetAllInstances", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supervisorServiceClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (SupervisorService_WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &SupervisorService_ServiceDesc.Streams[0], "/initd.v1.SupervisorService/Watch", opts...)
	if err != nil {
		return nil, err
	}
	x := &supervisorServiceWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type SupervisorService_WatchClient interface {
	Recv() (*Notification, error)
	grpc.ClientStream
}

type supervisorServiceWatchClient struct {
	grpc.ClientStream
}

func (x *supervisorServiceWatchClient) Recv() (*Notification, error) {
	m := new(Notification)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SupervisorServiceServer is the server API for SupervisorService. All
// implementations should embed UnimplementedSupervisorServiceServer for
// forward compatibility.
type SupervisorServiceServer interface {
	EmitEvent(context.Context, *EmitEventRequest) (*EmitEventResponse, error)
	Start(context.Context, *StartRequest) (*StartResponse, error)
	Stop(context.Context, *StopRequest) (*StopResponse, error)
	Restart(context.Context, *RestartRequest) (*RestartResponse, error)
	GetInstance(context.Context, *GetInstanceRequest) (*GetInstanceResponse, error)
	GetInstanceByName(context.Context, *GetInstanceByNameRequest) (*GetInstanceResponse, error)
	GetAllInstances(context.Context, *GetAllInstancesRequest) (*GetAllInstancesResponse, error)
	Watch(*WatchRequest, SupervisorService_WatchServer) error
}

// UnimplementedSupervisorServiceServer should be embedded to have forward
// compatible implementations.
type UnimplementedSupervisorServiceServer struct{}

func (UnimplementedSupervisorServiceServer) EmitEvent(context.Context, *EmitEventRequest) (*EmitEventResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method EmitEvent not implemented")
}
func (UnimplementedSupervisorServiceServer) Start(context.Context, *StartRequest) (*StartResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Start not implemented")
}
func (UnimplementedSupervisorServiceServer) Stop(context.Context, *StopRequest) (*StopResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Stop not implemented")
}
func (UnimplementedSupervisorServiceServer) Restart(context.Context, *RestartRequest) (*RestartResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Restart not implemented")
}
func (UnimplementedSupervisorServiceServer) GetInstance(context.Context, *GetInstanceRequest) (*GetInstanceResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetInstance not implemented")
}
func (UnimplementedSupervisorServiceServer) GetInstanceByName(context.Context, *GetInstanceByNameRequest) (*GetInstanceResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetInstanceByName not implemented")
}
func (UnimplementedSupervisorServiceServer) GetAllInstances(context.Context, *GetAllInstancesRequest) (*GetAllInstancesResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetAllInstances not implemented")
}
func (UnimplementedSupervisorServiceServer) Watch(*WatchRequest, SupervisorService_WatchServer) error {
	return status.Errorf(codes.Unimplemented, "method Watch not implemented")
}

// UnsafeSupervisorServiceServer may be embedded to opt out of forward
// compatibility for this service.
type UnsafeSupervisorServiceServer interface {
	mustEmbedUnimplementedSupervisorServiceServer()
}

func RegisterSupervisorServiceServer(s grpc.ServiceRegistrar, srv SupervisorServiceServer) {
	s.RegisterService(&SupervisorService_ServiceDesc, srv)
}

func _SupervisorService_EmitEvent_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EmitEventRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).EmitEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/EmitEvent"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).EmitEvent(ctx, req.(*EmitEventRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_Start_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StartRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).Start(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/Start"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).Start(ctx, req.(*StartRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_Stop_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StopRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).Stop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/Stop"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).Stop(ctx, req.(*StopRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_Restart_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RestartRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).Restart(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/Restart"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).Restart(ctx, req.(*RestartRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_GetInstance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetInstanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).GetInstance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/GetInstance"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).GetInstance(ctx, req.(*GetInstanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_GetInstanceByName_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetInstanceByNameRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).GetInstanceByName(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/GetInstanceByName"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).GetInstanceByName(ctx, req.(*GetInstanceByNameRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_GetAllInstances_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetAllInstancesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupervisorServiceServer).GetAllInstances(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/initd.v1.SupervisorService/GetAllInstances"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SupervisorServiceServer).GetAllInstances(ctx, req.(*GetAllInstancesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _SupervisorService_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(WatchRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SupervisorServiceServer).Watch(m, &supervisorServiceWatchServer{stream})
}

type SupervisorService_WatchServer interface {
	Send(*Notification) error
	grpc.ServerStream
}

type supervisorServiceWatchServer struct {
	grpc.ServerStream
}

func (x *supervisorServiceWatchServer) Send(m *Notification) error {
	return x.ServerStream.SendMsg(m)
}

// SupervisorService_ServiceDesc is the grpc.ServiceDesc for
// SupervisorService. It's only intended for direct use with
// grpc.RegisterService, and not to be introspected or modified (even as a
// copy).
var SupervisorService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "initd.v1.SupervisorService",
	HandlerType: (*SupervisorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "EmitEvent", Handler: _SupervisorService_EmitEvent_Handler},
		{MethodName: "Start", Handler: _SupervisorService_Start_Handler},
		{MethodName: "Stop", Handler: _SupervisorService_Stop_Handler},
		{MethodName: "Restart", Handler: _SupervisorService_Restart_Handler},
		{MethodName: "GetInstance", Handler: _SupervisorService_GetInstance_Handler},
		{MethodName: "GetInstanceByName", Handler: _SupervisorService_GetInstanceByName_Handler},
		{MethodName: "GetAllInstances", Handler: _SupervisorService_GetAllInstances_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       _SupervisorService_Watch_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "initd/v1/service_api.proto",
}
