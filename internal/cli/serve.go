package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/tjper/initd/internal/config"
	"github.com/tjper/initd/internal/encrypt"
	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/control"
	igrpc "github.com/tjper/initd/internal/supervisor/control/grpc"
	"github.com/tjper/initd/internal/supervisor/dispatch"
	"github.com/tjper/initd/internal/supervisor/event"
	"github.com/tjper/initd/internal/supervisor/job"
	"github.com/tjper/initd/internal/supervisor/process"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// classNotifier fans class.Notifier callbacks out to both the dispatcher
// (which must create/stop instances) and the control surface (which
// reports them on Watch streams), since class.Registry accepts only one
// Notifier (spec.md §4.3, §6.3).
type classNotifier struct {
	dispatch *dispatch.Supervisor
	control  *control.Server
}

func (n *classNotifier) JobAdded(c *class.JobClass) {
	n.dispatch.JobAdded(c)
	n.control.JobAdded(c)
}

func (n *classNotifier) JobRemoved(c *class.JobClass) {
	n.dispatch.JobRemoved(c)
	n.control.JobRemoved(c)
}

// instanceNotifier forwards dispatch.Supervisor's InstanceAdded/
// InstanceRemoved callbacks to the control surface once it exists; the
// dispatcher is constructed (and needs a Notifier) before the control
// surface can be (it needs the dispatcher), so this starts empty and is
// filled in immediately after.
type instanceNotifier struct {
	control *control.Server
}

func (n *instanceNotifier) InstanceAdded(c *class.JobClass, j *job.Job) {
	n.control.InstanceAdded(c, j)
}

func (n *instanceNotifier) InstanceRemoved(c *class.JobClass, j *job.Job) {
	n.control.InstanceRemoved(c, j)
}

func runServe(ctx context.Context) int {
	rt, err := config.Resolve()
	if err != nil {
		logger.Errorf("resolve runtime config; error: %v", err)
		return ecConfig
	}
	if err := config.EnsureLogDir(rt); err != nil {
		logger.Errorf("ensure log dir; error: %v", err)
		return ecConfig
	}

	store := event.NewStore()
	reaper := process.NewReaper()
	defer reaper.Stop()

	classNotif := &classNotifier{}
	registry := class.NewRegistry(classNotif)

	instNotif := &instanceNotifier{}
	sup := dispatch.New(dispatch.Config{
		Store:     store,
		Registry:  registry,
		Reaper:    reaper,
		OutputDir: rt.LogDir,
		Notifier:  instNotif,
	})
	classNotif.dispatch = sup

	ctrlSvc := control.NewServer(sup, registry)
	classNotif.control = ctrlSvc
	instNotif.control = ctrlSvc

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sup.Run(ctx)

	tlsConfig, err := encrypt.NewServermTLSConfig(*certFlag, *keyFlag, *caCertFlag)
	if err != nil {
		logger.Errorf("tls config; error: %v", err)
		return ecTLSConfig
	}

	srv := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	igrpc.RegisterSupervisorServiceServer(srv, igrpc.NewSupervisor(ctrlSvc))

	addr := fmt.Sprintf(":%d", *portFlag)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Errorf("listen on %s; error: %v", addr, err)
		return ecListen
	}
	defer lis.Close()

	logger.Infof("serving supervisor control API; addr: %s, session: %q", addr, rt.Session)
	if err := srv.Serve(lis); err != nil {
		logger.Errorf("serve on %s; error: %v", addr, err)
		return ecServe
	}

	return ecSuccess
}
