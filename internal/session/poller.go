package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/tmux"
)

// pollTail is how many trailing lines the poller classifies against.
const pollTail = 20

// Poller periodically refreshes per-session status from the multiplexer.
// At most one refresh per session is in flight; a tick skips sessions whose
// previous refresh has not returned.
type Poller struct {
	manager  *Manager
	interval time.Duration

	mu       sync.Mutex
	inflight map[string]bool
}

// NewPoller creates a Poller.
func NewPoller(manager *Manager, interval time.Duration) *Poller {
	return &Poller{
		manager:  manager,
		interval: interval,
		inflight: make(map[string]bool),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	sessions, err := p.manager.Store().ListSessions()
	if err != nil {
		slog.Warn("status poll: listing sessions", "err", err)
		return
	}
	for _, sess := range sessions {
		if sess.TmuxName == "" {
			continue
		}
		p.mu.Lock()
		if p.inflight[sess.ID] {
			p.mu.Unlock()
			continue
		}
		p.inflight[sess.ID] = true
		p.mu.Unlock()

		go func(sess *store.Session) {
			defer func() {
				p.mu.Lock()
				delete(p.inflight, sess.ID)
				p.mu.Unlock()
			}()
			p.refresh(ctx, sess)
		}(sess)
	}
}

// refresh recomputes one session's status and, opportunistically, learns
// its upstream agent handle from the pane output.
func (p *Poller) refresh(ctx context.Context, sess *store.Session) {
	m := p.manager
	status, lines, err := m.Mux().ClassifyPane(ctx, m.Classifier(), sess.TmuxName, pollTail)
	if err != nil {
		return
	}

	if sess.ClaudeSessionID == "" {
		if handle := m.Classifier().FindSessionID(lines); handle != "" {
			if wrote, err := m.Store().SetClaudeSessionID(sess.ID, handle); err == nil && wrote {
				slog.Info("learned agent session id", "session", sess.ID)
			}
		}
	}

	mapped := mapStatus(status)
	if mapped != sess.Status {
		if err := m.Store().SetSessionStatus(sess.ID, mapped); err != nil {
			slog.Warn("status poll: updating status", "session", sess.ID, "err", err)
		}
	}

	// Worker lifecycle advancement: pending workers go running when the
	// pane first shows life; running workers whose pane died without a
	// complete_worker call fail.
	if sess.IsWorker() {
		p.advanceWorker(sess, status)
	}
}

// mapStatus folds pane status into the session status set; a dead pane
// leaves the session idle (the record outlives the pane).
func mapStatus(s tmux.Status) string {
	switch s {
	case tmux.StatusRunning:
		return store.StatusRunning
	case tmux.StatusWaiting:
		return store.StatusWaiting
	case tmux.StatusError:
		return store.StatusError
	default:
		return store.StatusIdle
	}
}

func (p *Poller) advanceWorker(sess *store.Session, pane tmux.Status) {
	st := p.manager.Store()
	switch sess.WorkerStatus {
	case store.WorkerPending:
		if pane != tmux.StatusDead {
			_ = st.SetWorkerStatus(sess.ID, store.WorkerRunning)
		}
	case store.WorkerRunning:
		if pane == tmux.StatusDead {
			_ = st.SetWorkerStatus(sess.ID, store.WorkerFailed)
		}
	}
}
