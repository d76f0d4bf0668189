package rpserver

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DaemonProcess is a background worker running next to the API until its context ends.
type DaemonProcess interface {
	Run(ctx context.Context)
}

// DaemonFunc adapts a worker returning an error, such as a broker consumer, to a
// DaemonProcess. OnExit is called when the worker fails before its context ends.
type DaemonFunc struct {
	Name   string
	Fn     func(ctx context.Context) error
	OnExit func(err error)
}

func (d DaemonFunc) Run(ctx context.Context) {
	err := d.Fn(ctx)
	if ctx.Err() != nil {
		return
	}
	log.WithError(err).WithField("process", d.Name).Error("process exited")
	if d.OnExit != nil {
		d.OnExit(err)
	}
}

func NewDaemonServer(processes []DaemonProcess) *DaemonServer {
	da := &DaemonServer{}
	for _, p := range processes {
		da.addProcess(p)
	}
	return da
}

type DaemonServer struct {
	processes []DaemonProcess
}

func (da *DaemonServer) addProcess(process DaemonProcess) {
	if da.processes == nil {
		da.processes = make([]DaemonProcess, 0)
	}
	da.processes = append(da.processes, process)
}

// Serve runs every process until ctx is cancelled, then gives them shutdownTimeout to return.
func (da *DaemonServer) Serve(ctx context.Context) {
	if len(da.processes) < 1 {
		log.Info("no background processes configured")
		<-ctx.Done()
		return
	}

	log.WithField("processes", len(da.processes)).Info("started background processes")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := sync.WaitGroup{}
	for _, process := range da.processes {
		wg.Add(1)
		p := process
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}

	<-ctx.Done()
	log.Info("stopping background processes")

	// give them time to finish
	wchan := make(chan struct{})
	go func() {
		defer close(wchan)
		wg.Wait()
	}()

	select {
	case <-wchan:
		log.Info("background processes stopped")
	case <-time.After(shutdownTimeout):
		log.Warn("timed out waiting for background processes")
	}
}
