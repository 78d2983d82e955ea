package web

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kjosib/kale/logging"
)

const (
	// DefaultFirstByteTimeout bounds the wait for the first request
	// byte after accept. Browsers open speculative connections they
	// may never send on; without this bound a single-connection
	// server would hang on one of them forever.
	DefaultFirstByteTimeout = 1 * time.Second

	// DefaultRequestTimeout is the ceiling for reading the rest of a
	// request once its first byte has arrived, so a stalled client
	// cannot starve the process.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds writing one response.
	DefaultWriteTimeout = 60 * time.Second

	// DefaultMaxRequestBytes bounds a declared request body.
	DefaultMaxRequestBytes = 10 << 20
)

// Server runs the single-threaded HTTP/1.0 accept loop: one
// connection at a time, each carrying at most one request, each
// closed after its response. Requests are served in strict acceptance
// order, which is what lets every request own the embedded database
// exclusively for its duration.
type Server struct {
	// Handler answers every parsed request. Typically this is
	// Transactional(begin, router).
	Handler Handler

	Logger *logging.Logger

	FirstByteTimeout time.Duration
	RequestTimeout   time.Duration
	WriteTimeout     time.Duration
	MaxRequestBytes  int

	// AllowNonLoopback lets ListenAndServe bind addresses other than
	// loopback. The server has no TLS and no concurrency; exposing it
	// beyond localhost is almost always a mistake, so the default is
	// to refuse.
	AllowNonLoopback bool

	// Close may be called from another goroutine while Serve runs, so
	// the shared shutdown state needs synchronization.
	mu       sync.Mutex
	listener net.Listener
	stopping atomic.Bool
}

func (s *Server) firstByteTimeout() time.Duration {
	if s.FirstByteTimeout > 0 {
		return s.FirstByteTimeout
	}
	return DefaultFirstByteTimeout
}

func (s *Server) requestTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (s *Server) writeTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout
	}
	return DefaultWriteTimeout
}

func (s *Server) maxRequestBytes() int {
	if s.MaxRequestBytes > 0 {
		return s.MaxRequestBytes
	}
	return DefaultMaxRequestBytes
}

func (s *Server) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Nop()
}

// ListenAndServe binds addr and serves until Close or a shutdown
// response. It refuses non-loopback addresses unless AllowNonLoopback
// is set.
func (s *Server) ListenAndServe(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("bad listen address %q: %w", addr, err)
	}
	if !s.AllowNonLoopback && !isLoopbackHost(host) {
		return fmt.Errorf("refusing to bind non-loopback address %q (set AllowNonLoopback to override)", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Addr returns the bound address while serving, useful when the
// listen port was 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the accept loop. In-flight work on the current
// connection finishes first; Serve then returns nil.
func (s *Server) Close() error {
	s.stopping.Store(true)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// Serve runs the accept loop on an existing listener. Restricting the
// listener to loopback is the caller's responsibility on this path.
// It returns nil after Close or a ShutDown response, and the
// listener's error if accepting fails outright.
func (s *Server) Serve(ln net.Listener) error {
	if s.Handler == nil {
		return errors.New("web: Serve with nil Handler")
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	defer ln.Close()
	log := s.logger()
	log.Info("listening", logging.Fields{"addr": ln.Addr().String()})
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		shutdown := s.serveConn(conn)
		if shutdown {
			log.Info("shutting down", nil)
			s.stopping.Store(true)
			return nil
		}
	}
}

// serveConn handles one accepted connection start to finish and
// reports whether the handler asked for shutdown. Failures are
// contained here: nothing a client or handler does may take down the
// accept loop.
func (s *Server) serveConn(conn net.Conn) (shutdown bool) {
	defer conn.Close()
	log := s.logger()

	// The bounded wait for the first byte. Expiry is routine, not an
	// error: it is how speculative browser connections get cleared.
	_ = conn.SetReadDeadline(time.Now().Add(s.firstByteTimeout()))
	br := bufio.NewReaderSize(conn, 4096)
	if _, err := br.Peek(1); err != nil {
		log.Debug("connection went silent before sending", logging.Fields{
			"remote": conn.RemoteAddr().String(),
			"cause":  err.Error(),
		})
		return false
	}

	// First byte is here; from now on the whole-request ceiling
	// applies instead.
	_ = conn.SetReadDeadline(time.Now().Add(s.requestTimeout()))
	req, err := ReadRequest(br, s.maxRequestBytes())
	if err != nil {
		log.Warn("malformed request", logging.Fields{
			"remote": conn.RemoteAddr().String(),
			"error":  err.Error(),
		})
		s.writeResponse(conn, Generic(400, "", nil), log)
		return false
	}

	reqID := uuid.NewString()
	req = req.WithContext(WithRequestID(req.Context(), reqID))
	reqLog := log.With(logging.Fields{"requestId": reqID})
	reqLog.Info("request", logging.Fields{"method": req.Method, "uri": req.RawURI})

	start := time.Now()
	resp := s.invoke(req, reqLog)
	reqLog.Info("response", logging.Fields{
		"status":     resp.Code,
		"reason":     ReasonPhrase(resp.Code),
		"durationMs": time.Since(start).Milliseconds(),
	})

	s.writeResponse(conn, resp, reqLog)
	return resp.ShutDown
}

// invoke runs the root handler with a last-resort backstop: whatever
// the handler does, the caller gets a response. The transaction guard
// normally intercepts failures first; this catches compositions
// without one, and bugs in the middleware itself.
func (s *Server) invoke(req *Request, log *logging.Logger) (resp *Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("handler panicked", logging.Fields{
				"method": req.Method,
				"uri":    req.RawURI,
				"panic":  fmt.Sprint(recovered),
			})
			resp = FromPanic(req, recovered)
		}
	}()
	resp, err := s.Handler.Handle(req, Params{})
	if err != nil {
		log.Error("handler failed", logging.Fields{
			"method": req.Method,
			"uri":    req.RawURI,
			"error":  err.Error(),
		})
		return Generic(500, "", nil)
	}
	if resp == nil {
		log.Error("handler returned no response", logging.Fields{
			"method": req.Method,
			"uri":    req.RawURI,
		})
		return Generic(500, "", nil)
	}
	return resp
}

// writeResponse serializes one response: status line, headers with
// the managed Content-Length and Connection fields, then the body
// flattened straight onto the socket.
func (s *Server) writeResponse(conn net.Conn, resp *Response, log *logging.Logger) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	if !resp.header.Has("Content-Type") {
		resp.header.Set("Content-Type", "text/html; charset=utf-8")
	}
	resp.header.Set("Content-Length", strconv.Itoa(resp.Body.Len()))
	resp.header.Set("Connection", "close")

	bw := bufio.NewWriter(conn)
	fmt.Fprintf(bw, "HTTP/1.0 %d %s\r\n", resp.Code, ReasonPhrase(resp.Code))
	resp.header.Each(func(key, value string) {
		fmt.Fprintf(bw, "%s: %s\r\n", key, value)
	})
	bw.WriteString("\r\n")
	if _, err := resp.Body.WriteTo(bw); err != nil {
		log.Warn("failed to send response", logging.Fields{"error": err.Error()})
		return
	}
	if err := bw.Flush(); err != nil {
		log.Warn("failed to send response", logging.Fields{"error": err.Error()})
	}
}
