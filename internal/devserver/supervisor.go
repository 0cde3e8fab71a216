// Package devserver supervises long-running project dev servers: node
// processes spawned from user-entered command lines, and docker compose
// services. Ports are descriptive; the supervisor never binds them.
package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/saadnvd1/agentos/internal/apperr"
	"github.com/saadnvd1/agentos/internal/execx"
	"github.com/saadnvd1/agentos/internal/store"
)

// startGrace is how long a node process must stay alive (or a port become
// listenable) before the instance counts as running.
const startGrace = 2 * time.Second

// stopGrace is the SIGTERM-to-SIGKILL window on stop.
const stopGrace = 5 * time.Second

// composeTimeout bounds docker compose invocations.
const composeTimeout = 60 * time.Second

// logTail is the default number of log lines returned.
const logTail = 100

// Supervisor owns dev-server lifecycle.
type Supervisor struct {
	store  *store.Store
	runner *execx.Runner
	docker ContainerResolver

	mu    sync.Mutex
	procs map[string]*execx.Proc // instance id → live node process
}

// ContainerResolver resolves a compose service to its container id.
// Implemented by the docker client wrapper; nil disables resolution.
type ContainerResolver interface {
	ResolveContainer(ctx context.Context, workingDir, service string) (string, error)
}

// NewSupervisor creates a Supervisor. docker may be nil when the Docker
// daemon is unavailable; compose commands still work, the container id is
// just not recorded.
func NewSupervisor(st *store.Store, runner *execx.Runner, docker ContainerResolver) *Supervisor {
	return &Supervisor{
		store:  st,
		runner: runner,
		docker: docker,
		procs:  make(map[string]*execx.Proc),
	}
}

// StartSpec describes a dev server to start.
type StartSpec struct {
	ProjectID        string `json:"project_id"`
	Type             string `json:"type"`
	Name             string `json:"name"`
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
	Ports            []int  `json:"ports"`
	// PortEnvVar, when set, exports the first port to the process under
	// this name.
	PortEnvVar string `json:"port_env_var"`
}

// Start creates the instance row and launches the server. The row is
// persisted as starting before the process spawns; start failure sets
// status=failed and does not raise.
func (s *Supervisor) Start(ctx context.Context, spec StartSpec) (*store.DevServer, error) {
	switch spec.Type {
	case store.DevTypeNode, store.DevTypeDocker:
	default:
		return nil, apperr.New(apperr.BadRequest, "unknown dev server type %q", spec.Type)
	}
	if spec.Command == "" {
		return nil, apperr.New(apperr.BadRequest, "command is required")
	}
	if _, err := s.store.GetProject(spec.ProjectID); err != nil {
		return nil, err
	}

	inst, err := s.store.CreateDevServer(&store.DevServer{
		ProjectID:        spec.ProjectID,
		Type:             spec.Type,
		Name:             spec.Name,
		Command:          spec.Command,
		Status:           store.DevStarting,
		Ports:            spec.Ports,
		WorkingDirectory: spec.WorkingDirectory,
	})
	if err != nil {
		return nil, err
	}

	switch spec.Type {
	case store.DevTypeNode:
		s.startNode(ctx, inst, spec.PortEnvVar)
	case store.DevTypeDocker:
		s.startDocker(ctx, inst)
	}
	return s.store.GetDevServer(inst.ID)
}

// startNode launches the user-entered command through the documented shell
// variant and watches the grace window in the background.
func (s *Supervisor) startNode(ctx context.Context, inst *store.DevServer, portEnvVar string) {
	var env []string
	if portEnvVar != "" && len(inst.Ports) > 0 {
		env = append(env, fmt.Sprintf("%s=%d", portEnvVar, inst.Ports[0]))
	}
	proc, err := s.runner.StartShell(context.Background(), inst.Command, execx.Cmd{
		Dir: inst.WorkingDirectory,
		Env: env,
	})
	if err != nil {
		slog.Warn("dev server spawn failed", "id", inst.ID, "err", err)
		_ = s.store.SetDevServerStatus(inst.ID, store.DevFailed)
		return
	}

	s.mu.Lock()
	s.procs[inst.ID] = proc
	s.mu.Unlock()

	inst.PID = proc.PID()
	if err := s.store.UpdateDevServer(inst); err != nil {
		slog.Warn("recording dev server pid", "id", inst.ID, "err", err)
	}

	go s.watchStartup(inst.ID, proc, inst.Ports)
}

// watchStartup promotes starting→running once the process survives the
// grace window or a declared port accepts connections; an early exit means
// failed.
func (s *Supervisor) watchStartup(id string, proc *execx.Proc, ports []int) {
	deadline := time.After(startGrace)
	probe := time.NewTicker(200 * time.Millisecond)
	defer probe.Stop()
	for {
		select {
		case <-proc.Done():
			_ = s.store.SetDevServerStatus(id, store.DevFailed)
			s.dropProc(id)
			return
		case <-probe.C:
			if anyPortListening(ports) {
				_ = s.store.SetDevServerStatus(id, store.DevRunning)
				go s.watchExit(id, proc)
				return
			}
		case <-deadline:
			_ = s.store.SetDevServerStatus(id, store.DevRunning)
			go s.watchExit(id, proc)
			return
		}
	}
}

// watchExit marks a running instance stopped (clean exit) or failed once
// its process goes away outside a Stop call.
func (s *Supervisor) watchExit(id string, proc *execx.Proc) {
	<-proc.Done()
	s.mu.Lock()
	_, tracked := s.procs[id]
	delete(s.procs, id)
	s.mu.Unlock()
	if !tracked {
		// Stop already owned the transition.
		return
	}
	status := store.DevStopped
	if proc.ExitCode() != 0 {
		status = store.DevFailed
	}
	_ = s.store.SetDevServerStatus(id, status)
}

func (s *Supervisor) dropProc(id string) {
	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()
}

func anyPortListening(ports []int) bool {
	for _, p := range ports {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", p), 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

// startDocker brings up the compose service named by the command and
// records the container id.
func (s *Supervisor) startDocker(ctx context.Context, inst *store.DevServer) {
	_, err := s.runner.Run(ctx, execx.Cmd{
		Argv: []string{"docker", "compose", "up", "-d", inst.Command},
		Dir:  inst.WorkingDirectory, Timeout: composeTimeout,
	})
	if err != nil {
		slog.Warn("compose up failed", "id", inst.ID, "service", inst.Command, "err", err)
		_ = s.store.SetDevServerStatus(inst.ID, store.DevFailed)
		return
	}
	if s.docker != nil {
		if cid, err := s.docker.ResolveContainer(ctx, inst.WorkingDirectory, inst.Command); err == nil {
			inst.ContainerID = cid
		}
	}
	inst.Status = store.DevRunning
	if err := s.store.UpdateDevServer(inst); err != nil {
		slog.Warn("recording container id", "id", inst.ID, "err", err)
	}
}

// Stop terminates the instance: SIGTERM then SIGKILL for node, compose stop
// for docker.
func (s *Supervisor) Stop(ctx context.Context, id string) (*store.DevServer, error) {
	inst, err := s.store.GetDevServer(id)
	if err != nil {
		return nil, err
	}

	switch inst.Type {
	case store.DevTypeNode:
		s.mu.Lock()
		proc := s.procs[id]
		delete(s.procs, id)
		s.mu.Unlock()
		if proc != nil {
			proc.Kill(stopGrace)
		}
	case store.DevTypeDocker:
		_, err := s.runner.Run(ctx, execx.Cmd{
			Argv: []string{"docker", "compose", "stop", inst.Command},
			Dir:  inst.WorkingDirectory, Timeout: composeTimeout,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Upstream, err, "compose stop %s", inst.Command)
		}
	}

	if err := s.store.SetDevServerStatus(id, store.DevStopped); err != nil {
		return nil, err
	}
	return s.store.GetDevServer(id)
}

// Restart is stop followed by start with the stored config (type, command,
// working directory, ports). The port env var given to Start is not stored,
// so a restarted node process does not receive it.
func (s *Supervisor) Restart(ctx context.Context, id string) (*store.DevServer, error) {
	inst, err := s.Stop(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inst.Type {
	case store.DevTypeNode:
		inst.Status = store.DevStarting
		inst.PID = 0
		if err := s.store.UpdateDevServer(inst); err != nil {
			return nil, err
		}
		s.startNode(ctx, inst, "")
	case store.DevTypeDocker:
		s.startDocker(ctx, inst)
	}
	return s.store.GetDevServer(id)
}

// Remove stops the instance if needed and deletes its row.
func (s *Supervisor) Remove(ctx context.Context, id string) error {
	inst, err := s.store.GetDevServer(id)
	if err != nil {
		return err
	}
	if inst.Status == store.DevRunning || inst.Status == store.DevStarting {
		if _, err := s.Stop(ctx, id); err != nil {
			slog.Warn("stopping dev server before remove", "id", id, "err", err)
		}
	}
	return s.store.DeleteDevServer(id)
}

// Logs tails the instance's output: the captured ring for node, compose
// logs for docker.
func (s *Supervisor) Logs(ctx context.Context, id string, n int) ([]string, error) {
	if n <= 0 {
		n = logTail
	}
	inst, err := s.store.GetDevServer(id)
	if err != nil {
		return nil, err
	}
	switch inst.Type {
	case store.DevTypeNode:
		s.mu.Lock()
		proc := s.procs[id]
		s.mu.Unlock()
		if proc == nil {
			return nil, nil
		}
		return proc.TailLines(n), nil
	case store.DevTypeDocker:
		res, err := s.runner.Run(ctx, execx.Cmd{
			Argv: []string{"docker", "compose", "logs", "--no-color",
				fmt.Sprintf("--tail=%d", n), inst.Command},
			Dir: inst.WorkingDirectory, Timeout: composeTimeout,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Upstream, err, "compose logs %s", inst.Command)
		}
		return splitLines(res.Stdout, n), nil
	}
	return nil, nil
}

// List returns a project's instances (all when projectID is empty).
func (s *Supervisor) List(projectID string) ([]*store.DevServer, error) {
	return s.store.ListDevServers(projectID)
}

func splitLines(out string, n int) []string {
	if out == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
