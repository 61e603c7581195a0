// Package grpc hand-mirrors the shape protoc-gen-go-grpc would emit for a
// SupervisorService (message structs, a grpc.ServiceDesc, per-RPC handler
// functions), grounded on the teacher's generated
// proto/gen/go/jobworker/v1/service_api_grpc.pb.go, paired with the JSON
// encoding.Codec in codec.go in place of a real protobuf toolchain.
package grpc

// EmitEventRequest is the wire request for SupervisorService.EmitEvent.
type EmitEventRequest struct {
	Name string   `json:"name"`
	Env  []string `json:"env,omitempty"`
	Wait bool     `json:"wait,omitempty"`
}

type EmitEventResponse struct{}

// StartRequest is the wire request for SupervisorService.Start.
type StartRequest struct {
	Session string   `json:"session"`
	Name    string   `json:"name"`
	Env     []string `json:"env,omitempty"`
}

type StartResponse struct {
	Instance InstanceDetail `json:"instance"`
}

type StopRequest struct {
	Session  string `json:"session"`
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
}

type StopResponse struct {
	Instance InstanceDetail `json:"instance"`
}

type RestartRequest struct {
	Session  string `json:"session"`
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
}

type RestartResponse struct {
	Instance InstanceDetail `json:"instance"`
}

type GetInstanceRequest struct {
	Path string `json:"path"`
}

type GetInstanceByNameRequest struct {
	Session  string `json:"session"`
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
}

type GetInstanceResponse struct {
	Instance InstanceDetail `json:"instance"`
}

type GetAllInstancesRequest struct {
	Session string `json:"session,omitempty"`
}

type GetAllInstancesResponse struct {
	Instances []InstanceDetail `json:"instances"`
}

// InstanceDetail is the wire representation of control.InstanceDetail.
type InstanceDetail struct {
	Path     string         `json:"path"`
	Session  string         `json:"session"`
	Class    string         `json:"class"`
	Instance string         `json:"instance"`
	Goal     string         `json:"goal"`
	State    string         `json:"state"`
	Failed   bool           `json:"failed"`
	ExitCode int            `json:"exit_code"`
	PIDs     map[string]int `json:"pids,omitempty"`
}

// WatchRequest is the wire request for the server-streaming Watch RPC.
type WatchRequest struct {
	Session string `json:"session,omitempty"`
}

// Notification is one event delivered on a Watch stream.
type Notification struct {
	Kind      string `json:"kind"`
	Class     string `json:"class"`
	Session   string `json:"session,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
