// Package control defines the external control surface described in
// spec.md §6.2/§6.3: starting, stopping, and restarting instances, and
// querying/watching instance and class state. Message types here are
// plain Go structs rather than protoc-generated code (no protobuf
// toolchain is available in this environment); control/grpc pairs them
// with a hand-authored grpc.ServiceDesc and a JSON wire codec registered
// under the "proto" content-subtype, grounded on the teacher's generated
// proto/gen/go/jobworker/v1/service_api_grpc.pb.go.
package control

import "time"

// EmitEventRequest injects a named event into the store, as a bridge or an
// operator would (spec.md §6.1).
type EmitEventRequest struct {
	Name string
	Env  []string
	// Wait, when true, holds the reply until the event reaches Finished.
	Wait bool
}

type EmitEventResponse struct{}

// StartRequest asks the supervisor to emit a synthetic start for a class,
// as if its start_on condition had just been satisfied (spec.md §6.2).
type StartRequest struct {
	Session string
	Name    string
	Env     []string
}

type StartResponse struct {
	Instance InstanceDetail
}

// StopRequest asks the supervisor to stop a specific instance.
type StopRequest struct {
	Session string
	Name    string
	// Instance is the expanded instance name; empty for a singleton.
	Instance string
}

type StopResponse struct {
	Instance InstanceDetail
}

// RestartRequest stops then starts an instance without releasing control
// of it to another caller in between (spec.md §6.2).
type RestartRequest struct {
	Session  string
	Name     string
	Instance string
}

type RestartResponse struct {
	Instance InstanceDetail
}

// GetInstanceRequest fetches a single instance by its opaque path
// (class.Path), the identifier returned in every InstanceDetail.
type GetInstanceRequest struct {
	Path string
}

// GetInstanceByNameRequest fetches a single instance by (session, class
// name, expanded instance name) rather than its opaque path.
type GetInstanceByNameRequest struct {
	Session  string
	Name     string
	Instance string
}

type GetInstanceResponse struct {
	Instance InstanceDetail
}

// GetAllInstancesRequest lists every instance across every active class.
type GetAllInstancesRequest struct {
	// Session, when non-empty, restricts the listing to one session.
	Session string
}

type GetAllInstancesResponse struct {
	Instances []InstanceDetail
}

// InstanceDetail is the wire representation of a job.Job (spec.md §3.5,
// §6.2).
type InstanceDetail struct {
	Path     string
	Session  string
	Class    string
	Instance string
	Goal     string
	State    string
	Failed   bool
	ExitCode int
	PIDs     map[string]int
}

// WatchRequest subscribes to class/instance lifecycle notifications
// (spec.md §6.3). Session is not used: a subscription receives the
// notifications of every session.
type WatchRequest struct {
	Session string
}

// NotificationKind enumerates the four lifecycle events a Watch stream
// delivers (spec.md §6.3).
type NotificationKind int

const (
	JobAdded NotificationKind = iota
	JobRemoved
	InstanceAdded
	InstanceRemoved
)

func (k NotificationKind) String() string {
	switch k {
	case JobAdded:
		return "job-added"
	case JobRemoved:
		return "job-removed"
	case InstanceAdded:
		return "instance-added"
	case InstanceRemoved:
		return "instance-removed"
	default:
		return "unknown"
	}
}

// Notification is one event delivered on a Watch stream.
type Notification struct {
	Kind      NotificationKind
	Class     string
	Session   string
	Instance  string
	Timestamp time.Time
}
