// Package telnet implements the line-oriented OpenTSDB-compatible ingest
// server of spec §4.6: a single-threaded cooperative multiplexer over
// net.Listener/net.Conn readiness, one line buffer per connection.
package telnet

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jakinnaird/stsdb/internal/metric"
	"github.com/jakinnaird/stsdb/pkg/log"
)

// Sink is the subset of Datastore the telnet server needs.
type Sink interface {
	QueueMetric(m metric.Metric)
}

const readDeadline = 50 * time.Millisecond

// client holds per-connection ingest state (spec's "open/reading/closed").
type client struct {
	conn net.Conn
	buf  strings.Builder
}

// Server is the telnet Worker (spec §4.9's Proc capability set).
type Server struct {
	bindAddr string
	port     string
	sink     Sink

	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]*client
}

// New constructs a Server bound to bindAddr:port. An empty/"0" port
// disables the listener entirely (spec §6), in which case Start is a
// no-op and Process/Stop do nothing.
func New(bindAddr, port string, sink Sink) *Server {
	return &Server{bindAddr: bindAddr, port: port, sink: sink, clients: make(map[net.Conn]*client)}
}

// Start opens the listener, per spec §6 ("telnet_port, \"0\" disables").
func (s *Server) Start() error {
	if s.port == "" || s.port == "0" {
		log.Infof("telnet: disabled (port=%q)", s.port)
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.bindAddr, s.port))
	if err != nil {
		return err
	}
	s.listener = ln
	log.Infof("telnet: listening on %s", ln.Addr())
	return nil
}

// Process accepts one pending connection (non-blocking, bounded by
// readDeadline) and services all open connections for one read tick
// each, per spec §4.6's single-threaded cooperative multiplexer model.
func (s *Server) Process() {
	if s.listener == nil {
		time.Sleep(readDeadline)
		return
	}

	if tl, ok := s.listener.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(readDeadline))
	}
	if conn, err := s.listener.Accept(); err == nil {
		s.mu.Lock()
		s.clients[conn] = &client{conn: conn}
		s.mu.Unlock()
	}

	s.mu.Lock()
	conns := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if !s.service(c) {
			s.mu.Lock()
			delete(s.clients, c.conn)
			s.mu.Unlock()
			c.conn.Close()
		}
	}
}

// service reads up to 2 KiB from one connection (spec §4.6), filtering
// bytes and dispatching complete lines. Returns false when the
// connection should be closed.
func (s *Server) service(c *client) bool {
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))

	buf := make([]byte, 2048)
	n, err := c.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return true
		}
		return false
	}

	for _, b := range buf[:n] {
		if b == '\n' {
			s.handleLine(c)
			c.buf.Reset()
			continue
		}
		if isValidChar(b) {
			c.buf.WriteByte(b)
		}
	}
	return true
}

// isValidChar reports whether b belongs on the line buffer: alphanumeric,
// punctuation other than apostrophe, or space (spec §4.6/§9 — the
// original's isValidChar had inverted semantics relative to its caller;
// this returns true for bytes to *keep*).
func isValidChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == ' ':
		return true
	case b == '\'':
		return false
	case b >= 33 && b <= 126:
		return true // remaining printable punctuation
	default:
		return false
	}
}

// handleLine processes one complete line per spec §4.6: trims a leading
// non-alphabetic framing byte if present, requires the "put" verb with
// at least 5 space-separated fields, parses the remainder as a Metric,
// and either enqueues it or replies with an error line.
func (s *Server) handleLine(c *client) {
	line := c.buf.String()
	if line == "" {
		return
	}
	if len(line) > 0 && !isAlpha(line[0]) {
		line = line[1:]
	}
	if line == "" {
		return
	}

	if !strings.HasPrefix(line, "put") {
		// Non-put verbs are reserved for future use; currently a no-op.
		return
	}

	fields := strings.Fields(line)
	if len(fields) < 5 {
		reply(c.conn, "put", "expected at least 5 fields: put name timestamp value tag...")
		return
	}

	rest := strings.TrimPrefix(line, "put")
	rest = strings.TrimPrefix(rest, " ")

	m := metric.Parse(rest)
	if ok, msg := m.Valid(); !ok {
		reply(c.conn, "put", msg)
		return
	}
	s.sink.QueueMetric(m)
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func reply(conn net.Conn, verb, diagnostic string) {
	conn.Write([]byte(verb + ": " + diagnostic + "\r\n"))
}

// Stop closes every open client connection, then the listener (spec
// §4.6's shutdown order).
func (s *Server) Stop() {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[net.Conn]*client)
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
}
