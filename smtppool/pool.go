// Package smtppool implements the SMTP Connection Pool (C1): a bounded,
// per-(host,port,username) pool of live SMTP clients, reused across sends
// rather than redialed per message. Grounded on the reference
// smtp-server's deliverToHost dial/EHLO/STARTTLS/AUTH/DATA sequence and
// the transactional-api's deliverEmail message assembly, generalized into
// a real borrow/return pool instead of a redial-per-message client (§4.6).
package smtppool

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/metrics"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
)

const defaultTimeout = 30 * time.Second

// poolKey identifies one relay connection class: the pool is scoped per
// (host, port, username), matching §4.6 exactly.
type poolKey struct {
	host     string
	port     int
	username string
}

func keyFor(cfg *models.SMTPConfig) poolKey {
	return poolKey{host: cfg.Host, port: cfg.Port, username: cfg.Username}
}

// pooledClient wraps one live, authenticated SMTP session.
type pooledClient struct {
	client *smtp.Client
	conn   net.Conn
	host   string
}

func (pc *pooledClient) discard() {
	pc.client.Close()
}

func (pc *pooledClient) quitAndClose() {
	pc.client.Quit()
	pc.client.Close()
}

// subpool is a bounded semaphore pool for one poolKey: at most maxOpen
// connections may exist at once, idle ones are reused by borrow, and
// borrow blocks (respecting ctx) once the pool is saturated.
type subpool struct {
	mu      sync.Mutex
	idle    []*pooledClient
	numOpen int
	maxOpen int
	waiters []chan struct{}
}

func newSubpool(maxOpen int) *subpool {
	if maxOpen <= 0 {
		maxOpen = 1
	}
	return &subpool{maxOpen: maxOpen}
}

func (sp *subpool) borrow(ctx context.Context, dial func() (*pooledClient, error)) (*pooledClient, error) {
	sp.mu.Lock()
	for {
		if n := len(sp.idle); n > 0 {
			pc := sp.idle[n-1]
			sp.idle = sp.idle[:n-1]
			sp.mu.Unlock()
			return pc, nil
		}
		if sp.numOpen < sp.maxOpen {
			sp.numOpen++
			sp.mu.Unlock()
			pc, err := dial()
			if err != nil {
				sp.mu.Lock()
				sp.numOpen--
				sp.mu.Unlock()
				return nil, err
			}
			return pc, nil
		}
		wait := make(chan struct{})
		sp.waiters = append(sp.waiters, wait)
		sp.mu.Unlock()
		select {
		case <-wait:
			sp.mu.Lock()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// release returns a client to the pool (healthy) or discards it and frees
// its slot for a replacement on the next borrow (§4.6: "on any error the
// client is discarded and a replacement created on next borrow").
func (sp *subpool) release(pc *pooledClient, healthy bool) {
	sp.mu.Lock()
	if healthy {
		sp.idle = append(sp.idle, pc)
	} else {
		pc.discard()
		sp.numOpen--
		metrics.SMTPConnectionsActive.WithLabelValues(pc.host).Dec()
	}
	if len(sp.waiters) > 0 {
		w := sp.waiters[0]
		sp.waiters = sp.waiters[1:]
		close(w)
	}
	sp.mu.Unlock()
}

func (sp *subpool) closeAll() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for _, pc := range sp.idle {
		pc.quitAndClose()
	}
	sp.idle = nil
}

// Pool holds one subpool per relay identity and is safe for concurrent use
// by every worker routine in the process.
type Pool struct {
	heloHost string
	mu       sync.Mutex
	subpools map[poolKey]*subpool
}

// New constructs a Pool. heloHost is the local hostname advertised on
// EHLO/HELO.
func New(heloHost string) *Pool {
	return &Pool{heloHost: heloHost, subpools: make(map[poolKey]*subpool)}
}

func (p *Pool) subpoolFor(cfg *models.SMTPConfig) *subpool {
	key := keyFor(cfg)
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.subpools[key]
	if !ok {
		sp = newSubpool(cfg.PoolSize)
		p.subpools[key] = sp
	}
	return sp
}

func (p *Pool) timeout(cfg *models.SMTPConfig) time.Duration {
	if cfg.TimeoutMs <= 0 {
		return defaultTimeout
	}
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// dial opens and authenticates one client following the §4.6 sequence for
// cfg.Encryption.
func (p *Pool) dial(ctx context.Context, cfg *models.SMTPConfig) (*pooledClient, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	timeout := p.timeout(cfg)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "dial").Inc()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	if cfg.Encryption == models.EncryptionTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "dial").Inc()
		return nil, fmt.Errorf("new client: %w", err)
	}

	if err := client.Hello(p.heloHost); err != nil {
		client.Close()
		metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "ehlo").Inc()
		return nil, fmt.Errorf("EHLO: %w", err)
	}

	if cfg.Encryption == models.EncryptionSTARTTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, fmt.Errorf("STARTTLS required but not offered by %s", cfg.Host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			client.Close()
			metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "tls").Inc()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
		if err := client.Hello(p.heloHost); err != nil {
			client.Close()
			metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "ehlo").Inc()
			return nil, fmt.Errorf("EHLO after STARTTLS: %w", err)
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "auth").Inc()
			return nil, fmt.Errorf("AUTH: %w", err)
		}
	}

	metrics.SMTPConnectionsActive.WithLabelValues(cfg.Host).Inc()
	return &pooledClient{client: client, conn: conn, host: cfg.Host}, nil
}

// Message is one outbound envelope handed to Send.
type Message struct {
	From string
	To   []string
	Data []byte
}

// Send borrows a pooled client for cfg, issues MAIL FROM/RCPT TO/DATA, and
// returns it to the pool. Only an error is returned, no remote message id:
// like the reference sender, the server's final DATA reply is consumed (and
// discarded) by net/smtp's writer-close path, which does not surface the
// raw response text needed to parse one; callers fall back to a
// locally-generated id for correlation.
func (p *Pool) Send(ctx context.Context, cfg *models.SMTPConfig, msg Message) error {
	start := time.Now()
	sp := p.subpoolFor(cfg)

	pc, err := sp.borrow(ctx, func() (*pooledClient, error) { return p.dial(ctx, cfg) })
	if err != nil {
		metrics.ObserveSend(cfg.Host, start, err)
		return err
	}

	pc.conn.SetDeadline(time.Now().Add(p.timeout(cfg)))
	sendErr := sendOn(pc.client, msg)
	metrics.ObserveSend(cfg.Host, start, sendErr)
	if sendErr != nil {
		metrics.SMTPErrorsTotal.WithLabelValues(cfg.Host, "send").Inc()
	}
	sp.release(pc, sendErr == nil)
	return sendErr
}

func sendOn(client *smtp.Client, msg Message) error {
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := bytes.NewReader(msg.Data).WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("write data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return nil
}

// TestResult is the outcome of a connectivity probe (§4.6's test(configId)
// operation).
type TestResult struct {
	Success bool
	Latency time.Duration
	Error   string
}

// Test opens a fresh connection, does EHLO and (if credentials) AUTH, then
// QUIT, outside the pool — a probe must not leave a borrowed slot behind.
func (p *Pool) Test(ctx context.Context, cfg *models.SMTPConfig) TestResult {
	start := time.Now()
	pc, err := p.dial(ctx, cfg)
	if err != nil {
		return TestResult{Success: false, Latency: time.Since(start), Error: err.Error()}
	}
	pc.quitAndClose()
	metrics.SMTPConnectionsActive.WithLabelValues(cfg.Host).Dec()
	return TestResult{Success: true, Latency: time.Since(start)}
}

// Close tears down every idle pooled connection and detaches all subpools.
// A connection borrowed at the time of the call is not closed: on release
// it goes back to its detached subpool and stays open. Callers stop
// issuing new Sends first.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sp := range p.subpools {
		sp.closeAll()
	}
	p.subpools = make(map[poolKey]*subpool)
}
