package smtppool

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/stretchr/testify/require"
)

// fakeSMTPServer accepts unencrypted, unauthenticated connections and
// replies 2xx to every command it understands, enough to exercise the
// "none" encryption dial/send sequence against a real socket.
type fakeSMTPServer struct {
	ln       net.Listener
	sessions int
}

func startFakeSMTP(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTPServer{ln: ln}
	go s.acceptLoop()
	return s
}

func (s *fakeSMTPServer) addr() (string, int) {
	tcp := s.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func (s *fakeSMTPServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.sessions++
		go s.handle(conn)
	}
}

func (s *fakeSMTPServer) handle(conn net.Conn) {
	defer conn.Close()
	fmt.Fprintf(conn, "220 fake.example greeting\r\n")
	reader := bufio.NewReader(conn)
	inData := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if inData {
			if line == "." {
				inData = false
				fmt.Fprintf(conn, "250 2.0.0 OK queued as fake-id\r\n")
			}
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			fmt.Fprintf(conn, "250-fake.example\r\n250 OK\r\n")
		case strings.HasPrefix(upper, "MAIL FROM"):
			fmt.Fprintf(conn, "250 2.1.0 OK\r\n")
		case strings.HasPrefix(upper, "RCPT TO"):
			fmt.Fprintf(conn, "250 2.1.5 OK\r\n")
		case upper == "DATA":
			inData = true
			fmt.Fprintf(conn, "354 Start mail input\r\n")
		case upper == "QUIT":
			fmt.Fprintf(conn, "221 2.0.0 Bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "500 unrecognized command\r\n")
		}
	}
}

func (s *fakeSMTPServer) close() { s.ln.Close() }

func testConfig(host string, port int) *models.SMTPConfig {
	return &models.SMTPConfig{
		Host: host, Port: port, Encryption: models.EncryptionNone,
		PoolSize: 2, TimeoutMs: 2000,
	}
}

func TestPool_SendReusesConnection(t *testing.T) {
	srv := startFakeSMTP(t)
	defer srv.close()
	host, port := srv.addr()

	p := New("mail-queue.test")
	cfg := testConfig(host, port)

	for i := 0; i < 3; i++ {
		err := p.Send(context.Background(), cfg, Message{
			From: "sender@example.com", To: []string{"rcpt@example.com"}, Data: []byte("Subject: hi\r\n\r\nbody\r\n"),
		})
		require.NoError(t, err)
	}

	require.Equal(t, 1, srv.sessions, "expected the three sends to reuse a single pooled connection")
}

func TestPool_SendRespectsPoolSize(t *testing.T) {
	srv := startFakeSMTP(t)
	defer srv.close()
	host, port := srv.addr()

	p := New("mail-queue.test")
	cfg := testConfig(host, port)
	cfg.PoolSize = 1

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- p.Send(ctx, cfg, Message{From: "a@example.com", To: []string{"b@example.com"}, Data: []byte("x")})
		}()
	}
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	require.LessOrEqual(t, srv.sessions, 2)
}

func TestPool_Test(t *testing.T) {
	srv := startFakeSMTP(t)
	defer srv.close()
	host, port := srv.addr()

	p := New("mail-queue.test")
	res := p.Test(context.Background(), testConfig(host, port))
	require.True(t, res.Success)
	require.Empty(t, res.Error)
}

func TestPool_TestUnreachableHost(t *testing.T) {
	p := New("mail-queue.test")
	res := p.Test(context.Background(), testConfig("127.0.0.1", 1))
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
}
