package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/seamless/internal/logger"
)

// MessageHandler serves the requests a socket server receives
type MessageHandler interface {
	HandleStatusQuery() (Status, error)
	HandleIndicator(visible bool) error
	HandleRelease() error
}

// Handlers adapts plain functions to MessageHandler. A nil function answers
// ErrUnsupported.
type Handlers struct {
	Status    func() (Status, error)
	Indicator func(visible bool) error
	Release   func() error
}

func (h Handlers) HandleStatusQuery() (Status, error) {
	if h.Status == nil {
		return Status{}, ErrUnsupported
	}
	return h.Status()
}

func (h Handlers) HandleIndicator(visible bool) error {
	if h.Indicator == nil {
		return ErrUnsupported
	}
	return h.Indicator(visible)
}

func (h Handlers) HandleRelease() error {
	if h.Release == nil {
		return ErrUnsupported
	}
	return h.Release()
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a server that will listen on socketPath
func NewSocketServer(socketPath string, handler MessageHandler) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
	}
}

// Path returns the unix socket path
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove a stale socket left by a crashed process
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// user only
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server and removes the socket file
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.cancel()
	s.listener.Close()
	s.wg.Wait()

	os.RemoveAll(s.socketPath)
	logger.Debugf("IPC socket server at %s stopped", s.socketPath)
}

// Serve runs the server until ctx is cancelled.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if err := checkPeer(conn); err != nil {
		logger.Warnf("Rejected IPC connection: %v", err)
		return
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msg, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				_ = writeFrame(conn, NewError(err))
			}
			logger.Debugf("IPC connection closed: %v", err)
			return
		}

		if err := writeFrame(conn, s.handleMessage(msg)); err != nil {
			logger.Errorf("Failed to send IPC response: %v", err)
			return
		}
	}
}

func (s *SocketServer) handleMessage(msg Message) Message {
	switch msg.Kind {
	case KindStatusQuery:
		st, err := s.handler.HandleStatusQuery()
		if err != nil {
			return NewError(err)
		}
		resp, err := NewStatusResponse(st)
		if err != nil {
			return NewError(err)
		}
		return resp

	case KindIndicator:
		visible, err := msg.Visible()
		if err != nil {
			return NewError(err)
		}
		if err := s.handler.HandleIndicator(visible); err != nil {
			return NewError(err)
		}
		return NewAck()

	case KindRelease:
		if err := s.handler.HandleRelease(); err != nil {
			return NewError(err)
		}
		return NewAck()

	default:
		return NewError(fmt.Errorf("%w: %q", ErrUnsupported, msg.Kind))
	}
}
