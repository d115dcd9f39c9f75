package tcp

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logpipe-io/logpipe/internal/encoding"
	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/sender"
)

type lineServer struct {
	listener net.Listener

	mu    sync.Mutex
	lines []string
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &lineServer{listener: l}
	go s.accept()
	t.Cleanup(func() { _ = l.Close() })
	return s
}

func (s *lineServer) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go func() {
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				s.mu.Lock()
				s.lines = append(s.lines, scanner.Text())
				s.mu.Unlock()
			}
		}()
	}
}

func (s *lineServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// TestSendWritesLines delivers events and checks one line lands per event.
func TestSendWritesLines(t *testing.T) {
	t.Parallel()

	srv := newLineServer(t)
	sink, err := New(Config{Address: srv.listener.Addr().String()}, encoding.NewTextEncoder("message"), nil)
	require.NoError(t, err)
	defer sink.Stop()

	require.NoError(t, sink.Send(context.Background(), event.New(map[string]any{"message": "first"})))
	require.NoError(t, sink.Send(context.Background(), event.New(map[string]any{"message": "second"})))

	require.Eventually(t, func() bool {
		return len(srv.received()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"first", "second"}, srv.received())
}

// TestSendEncodeFailure surfaces encoder problems as encode errors.
func TestSendEncodeFailure(t *testing.T) {
	t.Parallel()

	srv := newLineServer(t)
	sink, err := New(Config{Address: srv.listener.Addr().String()}, encoding.NewTextEncoder("message"), nil)
	require.NoError(t, err)
	defer sink.Stop()

	err = sink.Send(context.Background(), event.New(map[string]any{"other": "x"}))
	var encErr *sender.EncodeError
	require.ErrorAs(t, err, &encErr)
}

// TestSendDialFailure reports unreachable destinations as send errors.
func TestSendDialFailure(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sink, err := New(Config{Address: addr, DialTimeout: 200 * time.Millisecond}, encoding.NewTextEncoder("message"), nil)
	require.NoError(t, err)

	err = sink.Send(context.Background(), event.New(map[string]any{"message": "lost"}))
	var sendErr *sender.SendError
	require.ErrorAs(t, err, &sendErr)
}

// TestNewValidation covers required configuration.
func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, encoding.NewTextEncoder(""), nil)
	require.ErrorContains(t, err, "address is required")

	_, err = New(Config{Address: "localhost:514"}, nil, nil)
	require.ErrorContains(t, err, "encoder is required")
}
