package comms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/r3labs/sse/v2"
	"github.com/sirupsen/logrus"
)

const (
	RegisterStateListener = "registerstatelistener"

	EventsStream = "messages"
	EventsPath   = "/events"

	ackInterval = 30 * time.Second
)

// Handler runs a petition and returns its exit code.
type Handler interface {
	Execute(ctx context.Context, p *Petition) int
}

type HandlerFunc func(ctx context.Context, p *Petition) int

func (f HandlerFunc) Execute(ctx context.Context, p *Petition) int {
	return f(ctx, p)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// only local tools talk to the port transport
		return r.Header.Get("Origin") == ""
	},
}

type stateListener struct {
	id   int
	conn FrameConn
	send chan string
	done chan struct{}
}

// Server accepts petitions and state listener registrations on a unix
// socket and, optionally, a websocket port. Every broadcast is mirrored to
// an SSE stream when an events address is configured.
type Server struct {
	logger  logrus.FieldLogger
	handler Handler

	mu        sync.Mutex
	listeners map[int]*stateListener
	nextID    int
	onNew     func(clientID int)

	events   *sse.Server
	servers  []*http.Server
	sockets  []net.Listener
	sockPath string

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(handler Handler, logger logrus.FieldLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:    logger,
		handler:   handler,
		listeners: make(map[int]*stateListener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnNewStateListener sets a hook called after a listener registers, used to
// push it the current prompt.
func (s *Server) OnNewStateListener(fn func(clientID int)) {
	s.mu.Lock()
	s.onNew = fn
	s.mu.Unlock()
}

// ListenUnix serves on a unix socket at path, replacing a stale one.
func (s *Server) ListenUnix(path string) error {
	if err := os.MkdirAll(dirOf(path), 0700); err != nil {
		return fmt.Errorf("failed to create socket dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if c, err := net.DialTimeout("unix", path, time.Second); err == nil {
			c.Close()
			return fmt.Errorf("socket %s already in use", path)
		}
		os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	os.Chmod(path, 0600)

	s.mu.Lock()
	s.sockets = append(s.sockets, ln)
	s.sockPath = path
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Errorf("Failed to accept petition: %v", err)
				}
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveConn(NewStreamConn(c))
			}()
		}
	}()
	s.logger.WithField("socket", path).Info("Listening for petitions")
	return nil
}

func dirOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		return path[:i]
	}
	return "."
}

// ListenWebsocket serves petitions as websocket connections on addr.
func (s *Server) ListenWebsocket(addr string) (net.Addr, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Errorf("websocket upgrade failed: %v", err)
			return
		}
		s.serveConn(NewWebsocketConn(conn))
	})
	return s.serveHTTP(addr, mux, "websocket")
}

// ListenEvents exposes every broadcast as an SSE stream on addr.
func (s *Server) ListenEvents(addr string) (net.Addr, error) {
	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(EventsStream)

	s.mu.Lock()
	s.events = events
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(EventsPath, events.ServeHTTP)
	return s.serveHTTP(addr, mux, "events")
}

func (s *Server) serveHTTP(addr string, h http.Handler, kind string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.servers = append(s.servers, srv)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("%s server stopped: %v", kind, err)
		}
	}()
	s.logger.WithFields(logrus.Fields{"addr": ln.Addr().String(), "kind": kind}).Info("Listening")
	return ln.Addr(), nil
}

func (s *Server) serveConn(conn FrameConn) {
	frame, err := conn.ReadFrame()
	if err != nil {
		conn.Close()
		return
	}
	line := strings.TrimSpace(string(frame))
	if line == RegisterStateListener {
		s.register(conn)
		return
	}
	defer conn.Close()

	p := newPetition(line, conn)
	s.logger.WithFields(logrus.Fields{"clientID": p.ClientID}).Debugf("Petition: %s", redact(p.Line))
	code := s.handler.Execute(s.ctx, p)
	if err := p.Finish(code); err != nil {
		s.logger.Debugf("Could not answer petition: %v", err)
	}
}

// redact hides passwords from logged petitions.
func redact(line string) string {
	words := strings.Fields(line)
	if len(words) >= 3 && (words[0] == "login" || words[0] == "passwd") {
		return words[0] + " " + words[1] + " <REDACTED>"
	}
	return line
}

func (s *Server) register(conn FrameConn) {
	s.mu.Lock()
	s.nextID++
	l := &stateListener{
		id:   s.nextID,
		conn: conn,
		send: make(chan string, 256),
		done: make(chan struct{}),
	}
	l.send <- "clientID:" + strconv.Itoa(l.id)
	s.listeners[l.id] = l
	onNew := s.onNew
	s.mu.Unlock()

	s.logger.WithField("clientID", l.id).Debug("Registered state listener")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer close(l.done)
		for msg := range l.send {
			if err := conn.WriteFrame([]byte(msg)); err != nil {
				s.drop(l.id)
				// drain so senders never block on a dead listener
				for range l.send {
				}
				return
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		// listeners never send anything after registering
		for {
			if _, err := conn.ReadFrame(); err != nil {
				s.drop(l.id)
				return
			}
		}
	}()

	if onNew != nil {
		onNew(l.id)
	}
}

func (s *Server) drop(id int) {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	close(l.send)
	l.conn.Close()
	s.logger.WithField("clientID", id).Debug("Unregistered state listener")
}

func (l *stateListener) offer(msg string) bool {
	select {
	case l.send <- msg:
		return true
	default:
		return false
	}
}

// Broadcast sends msg to every state listener and to the events stream.
func (s *Server) Broadcast(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		l.offer(msg)
	}
	if s.events != nil {
		s.events.Publish(EventsStream, &sse.Event{Data: []byte(msg)})
	}
}

// SendToClient sends msg to a single state listener. It reports false when
// the listener is gone.
func (s *Server) SendToClient(clientID int, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listeners[clientID]
	if !ok {
		return false
	}
	return l.offer(msg)
}

func (s *Server) NumListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// KeepAlive sends "ack" to listeners until ctx is done so dead ones get
// dropped.
func (s *Server) KeepAlive(ctx context.Context) {
	t := time.NewTicker(ackInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			for _, l := range s.listeners {
				l.offer("ack")
			}
			s.mu.Unlock()
		}
	}
}

// Close stops accepting petitions, drops every listener and waits for the
// running petitions.
func (s *Server) Close() error {
	s.cancel()
	s.mu.Lock()
	sockets := s.sockets
	servers := s.servers
	events := s.events
	s.events = nil
	path := s.sockPath
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, ln := range sockets {
		ln.Close()
	}
	if events != nil {
		events.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(ctx)
	}
	for _, id := range ids {
		s.drop(id)
	}
	s.wg.Wait()
	if path != "" {
		os.Remove(path)
	}
	return nil
}
