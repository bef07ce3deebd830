package session

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/ntripstation/pkg/config"
	"github.com/bramburn/ntripstation/pkg/geo"
	"github.com/bramburn/ntripstation/pkg/registry"
	"github.com/bramburn/ntripstation/pkg/upstream"
)

// upstreamEvent reports that a forwarder goroutine has stopped, either
// because the rover session closed the link itself (expected) or because
// the peer closed or errored (unexpected, triggers a re-dial on the next
// GPGGA). link identifies which forwarder this is so a stale event from an
// already-replaced link can't be mistaken for the current one, even if the
// rover reselects the same mount point it just left.
type upstreamEvent struct {
	link *upstream.Link
	err  error
}

// Engine is the per-rover state machine. The fields marked "owned by Run()"
// below are touched exclusively by the Run goroutine; nothing else mutates
// them, which is what makes upstream switching serialized without an
// explicit lock around the switch itself.
type Engine struct {
	id     string
	conn   net.Conn
	store  *config.Store
	reg    *registry.Registry
	logger logrus.FieldLogger

	upstreamEvents chan upstreamEvent

	// owned by Run()
	boundMount string
	link       *upstream.Link
}

// New creates an Engine for an accepted rover connection. id is the
// session's UUID, already minted by the listener.
func New(id string, conn net.Conn, store *config.Store, reg *registry.Registry, logger logrus.FieldLogger) *Engine {
	return &Engine{
		id:             id,
		conn:           conn,
		store:          store,
		reg:            reg,
		logger:         logger.WithField("session_id", id),
		upstreamEvents: make(chan upstreamEvent, 4),
	}
}

// Run drives the session to completion: registers it, reads and dispatches
// rover input until the rover closes or an unrecoverable protocol error
// occurs, then tears down any bound upstream and marks the session closed.
// It blocks until the session ends.
func (e *Engine) Run() {
	e.reg.Track(e.id, registry.RoverSession{
		RemoteAddr:  e.conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		Active:      true,
	})

	defer func() {
		e.closeUpstream()
		e.reg.MarkClosed(e.id)
		e.conn.Close()
	}()

	lines := make(chan string)
	readErrs := make(chan error, 1)
	go e.readLines(lines, readErrs)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := e.handleLine(line); done {
				return
			}
		case ev := <-e.upstreamEvents:
			e.handleUpstreamEvent(ev)
		}
	}
}

func (e *Engine) readLines(out chan<- string, errs chan<- error) {
	defer close(out)
	reader := bufio.NewReader(e.conn)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			out <- trimmed
		}
		if err != nil {
			errs <- err
			return
		}
	}
}

// handleLine dispatches one inbound line by its leading token, per the
// three accepted prefixes. It returns true when the session should end.
func (e *Engine) handleLine(line string) bool {
	e.reg.Update(e.id, registry.Delta{BytesReceivedDelta: uint64(len(line) + 2)})

	switch {
	case strings.HasPrefix(line, "GET / "):
		e.serveSourcetable()
		return true

	case strings.HasPrefix(line, "GET /"):
		cfg := e.store.Get()
		mount := strings.TrimPrefix(line, "GET /")
		if idx := strings.IndexAny(mount, " \t"); idx >= 0 {
			mount = mount[:idx]
		}
		if mount == cfg.MountPoint {
			e.subscribe()
			return false
		}
		e.logger.WithField("mount", mount).Warn("request for unknown mount point, closing")
		return true

	case isGGAPrefix(line):
		e.handleGGA(line)
		return false

	default:
		e.logger.WithField("line", line).Warn("unrecognized rover request, closing")
		return true
	}
}

func isGGAPrefix(line string) bool {
	upper := strings.ToUpper(line)
	return strings.HasPrefix(upper, "$GPGGA") || strings.HasPrefix(upper, "$GNGGA")
}

func (e *Engine) serveSourcetable() {
	cfg := e.store.Get()
	body := buildSourcetable(cfg.MountPoint, defaultSourcetableLocation)
	e.write(body)
}

func (e *Engine) subscribe() {
	e.write(icyResponse)
}

func (e *Engine) write(s string) {
	n, err := e.conn.Write([]byte(s))
	if err != nil {
		e.logger.WithError(err).Warn("failed writing to rover")
		return
	}
	e.reg.Update(e.id, registry.Delta{BytesSentDelta: uint64(n)})
}

// handleGGA implements the upstream switching rules of spec §4.4. A parse
// failure is logged and ignored; the binding is left unchanged.
func (e *Engine) handleGGA(line string) {
	pos, ok, err := geo.ParseGPGGA(line)
	if err != nil || !ok {
		e.logger.WithError(err).Warn("ignoring unparseable GPGGA sentence")
		return
	}

	e.reg.Update(e.id, registry.Delta{Position: &registry.Position{
		Latitude:      pos.Latitude,
		Longitude:     pos.Longitude,
		FixQuality:    pos.FixQuality,
		NumSatellites: pos.NumSatellites,
	}})

	cfg := e.store.Get()
	candidates := make([]geo.Station, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		candidates = append(candidates, geo.Station{
			MountPoint: st.MountPoint,
			Latitude:   st.Latitude,
			Longitude:  st.Longitude,
			Active:     st.IsActive(),
		})
	}

	closest, ok := geo.FindClosestStation(pos.Latitude, pos.Longitude, candidates)
	if !ok {
		// No station qualifies: keep the current binding untouched.
		return
	}

	switch {
	case e.boundMount == "":
		e.dial(closest.Station.MountPoint, cfg)
	case e.boundMount == closest.Station.MountPoint:
		// Already bound to the nearest station; nothing to do.
	default:
		e.closeUpstream()
		e.dial(closest.Station.MountPoint, cfg)
	}
}

// dial opens a new upstream link for mount and starts its forwarder. Called
// only from the Run() goroutine, so it never races a concurrent switch.
func (e *Engine) dial(mount string, cfg config.ServerConfig) {
	var station *config.Station
	for i := range cfg.Stations {
		if cfg.Stations[i].MountPoint == mount {
			station = &cfg.Stations[i]
			break
		}
	}
	if station == nil {
		return
	}

	link, err := upstream.Dial(station.Host, station.Port, station.MountPoint, station.Username, station.Password, cfg.UserAgent)
	if err != nil {
		e.logger.WithError(err).WithField("mount", mount).Warn("upstream dial failed, staying unbound")
		return
	}

	e.link = link
	e.boundMount = mount
	e.reg.Update(e.id, registry.Delta{BoundMountPoint: &mount})

	go e.forward(link)
}

// forward copies bytes from the upstream link to the rover until the link
// dies, then reports that fact back to the Run() goroutine. It never
// mutates Engine fields directly.
func (e *Engine) forward(link *upstream.Link) {
	buf := make([]byte, 32*1024)
	for {
		n, err := link.Conn.Read(buf)
		if n > 0 {
			if _, writeErr := e.conn.Write(buf[:n]); writeErr != nil {
				e.upstreamEvents <- upstreamEvent{link: link, err: writeErr}
				return
			}
			e.reg.Update(e.id, registry.Delta{BytesSentDelta: uint64(n)})
		}
		if err != nil {
			e.upstreamEvents <- upstreamEvent{link: link, err: err}
			return
		}
	}
}

// handleUpstreamEvent processes a forwarder's termination. An event whose
// link is no longer e.link is stale: it belonged to a link a switch
// already closed and replaced, so it is ignored.
func (e *Engine) handleUpstreamEvent(ev upstreamEvent) {
	if ev.link != e.link {
		return
	}
	mount := e.boundMount
	e.logger.WithError(ev.err).WithField("mount", mount).Info("upstream link ended, unbinding")
	e.link = nil
	e.boundMount = ""
	empty := ""
	e.reg.Update(e.id, registry.Delta{BoundMountPoint: &empty})
}

// closeUpstream half-closes the write side of the bound link so the peer
// sees EOF, gives any in-flight bytes a brief moment to drain, then
// destroys the connection. Safe to call when no link is bound.
func (e *Engine) closeUpstream() {
	if e.link == nil {
		return
	}
	if tcp, ok := e.link.Conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
		time.Sleep(20 * time.Millisecond)
	}
	_ = e.link.Close()
	e.link = nil
	e.boundMount = ""
}
