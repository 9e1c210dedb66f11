// Package server implements the Connection Loop (spec §4.H): a
// single-threaded, cooperative readiness multiplexer over one Unix
// listening socket plus every accepted client socket, framing requests
// and responses per spec §6 and driving internal/protocol.Dispatcher one
// command at a time.
package server

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/ejyy/matchd/internal/protocol"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// RequestFrameSize is the fixed size of one client request frame: command
// text padded with trailing NUL bytes (spec §6).
const RequestFrameSize = 256

// Response frame sizes (spec §6): writeResponse picks the smallest one
// that fits, paginating with a `PAGES >> NNNN\n` header when even the
// largest doesn't.
const (
	smallFrameSize     = 64
	orderFrameSize     = 256
	bookFrameSize      = 1024
	writeTimeout       = time.Second
	maxEpollEvents     = 64
	pageHeaderDigits   = 4
)

// Server owns the listening socket, the epoll instance multiplexing it
// against every accepted client fd, and the Dispatcher all commands are
// routed through. Everything here runs on one goroutine (spec §5:
// "single-threaded cooperative... no shared mutable state across
// threads").
type Server struct {
	logger     *zap.Logger
	dispatcher *protocol.Dispatcher

	sockPath string
	listenFD int
	epollFD  int

	clients map[int]*client
	closing bool
}

type client struct {
	fd  int
	buf []byte
}

// New binds a Unix domain listening socket at sockPath (unlinking any
// stale file first) and creates the epoll instance multiplexing it.
func New(sockPath string, dispatcher *protocol.Dispatcher, logger *zap.Logger) (*Server, error) {
	_ = os.Remove(sockPath)

	listenFD, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.WithMessage(err, "server: create listening socket")
	}
	addr := &unix.SockaddrUnix{Name: sockPath}
	if err := unix.Bind(listenFD, addr); err != nil {
		unix.Close(listenFD)
		return nil, errors.WithMessage(err, "server: bind listening socket")
	}
	if err := unix.Listen(listenFD, unix.SOMAXCONN); err != nil {
		unix.Close(listenFD)
		return nil, errors.WithMessage(err, "server: listen")
	}
	if err := unix.SetNonblock(listenFD, true); err != nil {
		unix.Close(listenFD)
		return nil, errors.WithMessage(err, "server: set listener non-blocking")
	}

	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(listenFD)
		return nil, errors.WithMessage(err, "server: epoll_create1")
	}
	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, listenFD, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(listenFD)}); err != nil {
		unix.Close(epollFD)
		unix.Close(listenFD)
		return nil, errors.WithMessage(err, "server: register listener with epoll")
	}

	return &Server{
		logger:     logger,
		dispatcher: dispatcher,
		sockPath:   sockPath,
		listenFD:   listenFD,
		epollFD:    epollFD,
		clients:    make(map[int]*client),
	}, nil
}

// Run drives the connection loop until the dispatcher processes `exit` or
// ctx is cancelled. On either of those returns, every client socket is
// closed and the listening socket is unlinked (spec §5: graceful `exit`
// "closes all open client sockets, unlinks the listening socket"); an
// epoll_wait failure returns its error without that cleanup.
func (s *Server) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		if s.closing {
			s.shutdown()
			return nil
		}
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		default:
		}

		n, err := unix.EpollWait(s.epollFD, events, int(writeTimeout/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.WithMessage(err, "server: epoll_wait")
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == s.listenFD:
				s.acceptClient()
			default:
				s.serviceClient(ctx, fd)
			}
		}
	}
}

func (s *Server) acceptClient() {
	fd, _, err := unix.Accept(s.listenFD)
	if err != nil {
		if err != unix.EAGAIN {
			s.logger.Warn("server: accept", zap.Error(err))
		}
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return
	}
	if err := unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		s.logger.Warn("server: register client with epoll", zap.Error(err))
		unix.Close(fd)
		return
	}
	s.clients[fd] = &client{fd: fd, buf: make([]byte, RequestFrameSize)}
}

func (s *Server) serviceClient(ctx context.Context, fd int) {
	c, ok := s.clients[fd]
	if !ok {
		return
	}
	n, err := unix.Read(fd, c.buf)
	if err != nil || n == 0 {
		s.closeClient(fd)
		return
	}

	line := nulTerminated(c.buf[:n])
	resp := s.dispatcher.Dispatch(ctx, line)
	if err := s.writeResponse(fd, resp); err != nil {
		s.logger.Warn("server: write response", zap.Int("fd", fd), zap.Error(err))
		s.closeClient(fd)
		return
	}

	if s.dispatcher.Exiting() {
		s.closing = true
	}
}

func nulTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// writeResponse frames resp per spec §6: pick the smallest of the three
// frame sizes the payload fits in; if it fits none, page it behind a
// `PAGES >> NNNN\n` header, each page padded to the largest frame size.
func (s *Server) writeResponse(fd int, resp string) error {
	frameSize, fits := chooseFrame(resp)
	if fits {
		return writeFramed(fd, []byte(resp), frameSize)
	}

	pages := paginate(resp, bookFrameSize)
	header := formatPagesHeader(len(pages))
	if err := writeFramed(fd, []byte(header), bookFrameSize); err != nil {
		return err
	}
	for _, page := range pages {
		if err := writeFramed(fd, []byte(page), bookFrameSize); err != nil {
			return err
		}
	}
	return nil
}

func chooseFrame(resp string) (int, bool) {
	switch {
	case len(resp) < smallFrameSize:
		return smallFrameSize, true
	case len(resp) < orderFrameSize:
		return orderFrameSize, true
	case len(resp) < bookFrameSize:
		return bookFrameSize, true
	default:
		return 0, false
	}
}

func paginate(resp string, pageSize int) []string {
	var pages []string
	for len(resp) > 0 {
		n := pageSize
		if n > len(resp) {
			n = len(resp)
		}
		pages = append(pages, resp[:n])
		resp = resp[n:]
	}
	return pages
}

func formatPagesHeader(count int) string {
	digits := []rune{'0', '0', '0', '0'}
	s := []rune(strconv.Itoa(count))
	for i := 0; i < len(s) && i < pageHeaderDigits; i++ {
		digits[pageHeaderDigits-1-i] = s[len(s)-1-i]
	}
	return "PAGES >> " + string(digits) + "\n"
}

func writeFramed(fd int, payload []byte, frameSize int) error {
	frame := make([]byte, frameSize)
	copy(frame, payload)

	deadline := time.Now().Add(writeTimeout)
	written := 0
	for written < len(frame) {
		if time.Now().After(deadline) {
			return errors.New("server: write deadline exceeded")
		}
		n, err := unix.Write(fd, frame[written:])
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return err
		}
		written += n
	}
	return nil
}

func (s *Server) closeClient(fd int) {
	unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
	unix.Close(fd)
	delete(s.clients, fd)
}

func (s *Server) shutdown() {
	for fd := range s.clients {
		s.closeClient(fd)
	}
	unix.Close(s.listenFD)
	unix.Close(s.epollFD)
	_ = os.Remove(s.sockPath)
}
