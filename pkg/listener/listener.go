package listener

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bramburn/ntripstation/pkg/config"
	"github.com/bramburn/ntripstation/pkg/registry"
	"github.com/bramburn/ntripstation/pkg/session"
)

// Listener binds the configured interface:port and spawns one
// session.Engine per accepted rover connection.
type Listener struct {
	store  *config.Store
	reg    *registry.Registry
	logger logrus.FieldLogger

	mu    sync.Mutex
	ln    net.Listener
	conns map[string]net.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Listener; call Start to bind and begin accepting.
func New(store *config.Store, reg *registry.Registry, logger logrus.FieldLogger) *Listener {
	return &Listener{store: store, reg: reg, logger: logger}
}

// Start binds the interface:port named by the current config snapshot and
// begins accepting connections in a background goroutine. A bind failure is
// returned to the caller, who per spec §5 should treat it as fatal.
func (l *Listener) Start() error {
	cfg := l.store.Get()
	addr := fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listener: binding %s: %w", addr, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.conns = make(map[string]net.Conn)
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.mu.Unlock()

	l.logger.WithField("addr", addr).Info("listener bound, accepting rover connections")

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				l.logger.WithError(err).Warn("accept failed, continuing")
				continue
			}
		}

		id := uuid.New().String()
		eng := session.New(id, conn, l.store, l.reg, l.logger)

		l.mu.Lock()
		l.conns[id] = conn
		l.mu.Unlock()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() {
				l.mu.Lock()
				delete(l.conns, id)
				l.mu.Unlock()
			}()
			eng.Run()
		}()
	}
}

// Addr returns the bound address. Only meaningful after Start succeeds;
// mainly useful in tests that need to dial the listener.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Stop implements the process-level graceful shutdown sequence: stop
// accepting, close the listening socket, then close every still-open rover
// connection. Each session's own deferred cleanup (closeUpstream,
// MarkClosed) runs as its Engine.Run unwinds from the resulting read error,
// which is what flushes the registry's terminal state for that session.
func (l *Listener) Stop() {
	l.mu.Lock()
	ln := l.ln
	cancel := l.cancel
	conns := make([]net.Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
}
