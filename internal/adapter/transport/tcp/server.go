package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

// replyTimeout bounds the final write, which may come after the conn TTL when
// reporting was slow.
const replyTimeout = 5 * time.Second

// Server speaks a line protocol: the peer sends one challenge as JSON, gets an
// "issued" reply and later one terminal reply. A "cancel" line or EOF from the
// peer cancels the challenge.
type Server struct {
	log       *slog.Logger
	addr      string
	ttl       time.Duration
	orch      Orchestrator
	ln        net.Listener
	wg        sync.WaitGroup
	connsMu   sync.Mutex
	active    map[net.Conn]struct{}
	shutdownT time.Duration
}

func NewServer(log *slog.Logger, addr string, ttl time.Duration, shutdown time.Duration, orch Orchestrator) *Server {
	return &Server{
		log:       log,
		addr:      addr,
		ttl:       ttl,
		shutdownT: shutdown,
		orch:      orch,
		active:    make(map[net.Conn]struct{}),
	}
}

func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	s.log.Info("tcp server started", "addr", s.addr, "conn_ttl", s.ttl.String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.acceptLoop() }()

	select {
	case <-ctx.Done():

		s.log.Info("shutdown: closing listener")
		_ = s.ln.Close()

		s.connsMu.Lock()
		for c := range s.active {
			_ = c.SetDeadline(time.Now().Add(200 * time.Millisecond))
			if tc, ok := c.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
		}
		s.connsMu.Unlock()

		done := make(chan struct{})
		go func() { s.wg.Wait(); close(done) }()
		select {
		case <-done:
			s.log.Info("shutdown: all connections drained")
		case <-time.After(s.shutdownT):
			s.log.Warn("shutdown: force-close remaining connections")
			s.connsMu.Lock()
			for c := range s.active {
				_ = c.Close()
			}
			s.connsMu.Unlock()
		}
		return nil

	case err := <-errCh:
		return err
	}
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("temporary accept error", "err", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.track(c, false)
			s.handle(c)
		}(conn)
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.connsMu.Lock()
	if add {
		s.active[c] = struct{}{}
	} else {
		delete(s.active, c)
	}
	s.connsMu.Unlock()
}

func writeReply(bw *bufio.Writer, r entity.Reply) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(payload, '\n')); err != nil {
		return err
	}
	return bw.Flush()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.ttl))

	bw := bufio.NewWriter(conn)
	br := bufio.NewReader(conn)

	line, err := br.ReadString('\n')
	if err != nil {
		s.log.Debug("read challenge failed", "err", err)
		return
	}
	var ch entity.ChallengeParameters
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &ch); err != nil {
		_, _ = bw.WriteString("invalid challenge json\n")
		_ = bw.Flush()
		s.log.Debug("bad challenge", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := s.orch.Issue(ctx, ch)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrInvalidChallenge):
			_, _ = bw.WriteString(err.Error() + "\n")
		case errors.Is(err, service.ErrClosed):
			_, _ = bw.WriteString("server shutting down\n")
		default:
			_, _ = bw.WriteString("issue failed\n")
			s.log.Error("issue failed", "err", err)
		}
		_ = bw.Flush()
		return
	}
	id := h.ID.String()

	if err := writeReply(bw, entity.Reply{ID: id, Status: entity.StatusIssued}); err != nil {
		s.log.Debug("write ack failed", "id", id, "err", err)
		s.orch.Cancel(h.ID)
		return
	}
	s.log.Debug("challenge accepted",
		"remote", conn.RemoteAddr().String(),
		"id", id,
		"difficulty", ch.Difficulty,
	)

	// Anything the peer sends after the challenge, or its hanging up, cancels it.
	go func() {
		l, err := br.ReadString('\n')
		if err != nil || strings.TrimSpace(l) == "cancel" {
			s.orch.Cancel(h.ID)
			return
		}
		s.log.Debug("unexpected peer line, cancelling", "id", id)
		s.orch.Cancel(h.ID)
	}()

	<-h.Done()
	out := h.Outcome()
	r := entity.Reply{
		ID:       id,
		Status:   out.Status.String(),
		Result:   out.Result,
		Reason:   out.Reason,
		Attempts: out.Attempts,
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
	}
	_ = conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	if err := writeReply(bw, r); err != nil {
		s.log.Debug("write outcome failed", "id", id, "err", err)
		return
	}
	s.log.Info("challenge finished", "remote", conn.RemoteAddr().String(), "id", id, "status", r.Status)
}
