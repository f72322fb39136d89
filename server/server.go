// Package server wires the three protocol engines and the DNS
// resolver to a shared mailbox store behind one bounded worker pool.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/dcd-mail/mailspool/server/dnsresolve"
	"github.com/dcd-mail/mailspool/server/imap"
	"github.com/dcd-mail/mailspool/server/metrics"
	"github.com/dcd-mail/mailspool/server/pop3"
	"github.com/dcd-mail/mailspool/server/smtp"
	"github.com/dcd-mail/mailspool/server/store"
)

const (
	SMTPPort = 25
	IMAPPort = 143
	POP3Port = 110

	shutdownGrace = 10 * time.Second
)

// UserRec is one compiled-in (or config-file-supplied) account. A
// bcrypt hash is preferred; a plaintext Password is accepted for the
// compiled-in default table.
type UserRec struct {
	Name     string
	Password string
	PwHash   string
}

// Config is the fully resolved process configuration: the two
// mandatory positional arguments plus whatever an optional config
// file layered on top.
type Config struct {
	Domain      string
	MaxWorkers  int
	StorageBase string

	SMTPAddr    string
	IMAPAddr    string
	POP3Addr    string
	MetricsAddr string

	DNSServer string

	SMTPTimeout time.Duration
	IMAPTimeout time.Duration
	POP3Timeout time.Duration

	Users []UserRec
}

// Server holds the wiring shared by every accepted connection.
type Server struct {
	config   *Config
	store    *store.Store
	resolver *dnsresolve.Resolver
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

func New(config *Config) *Server {
	resolver := dnsresolve.NewResolver()
	if config.DNSServer != "" {
		resolver.Server = config.DNSServer
	}

	return &Server{
		config:   config,
		store:    store.New(config.StorageBase),
		resolver: resolver,
		sem:      semaphore.NewWeighted(int64(config.MaxWorkers)),
	}
}

// authenticate checks a user/password pair against the compiled-in
// (or config-supplied) user table, preferring a bcrypt comparison
// when a hash is on file.
func (s *Server) authenticate(user, password string) error {
	for _, u := range s.config.Users {
		if u.Name != user {
			continue
		}
		if u.PwHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(u.PwHash), []byte(password)) != nil {
				return errors.New("invalid credentials")
			}
			return nil
		}
		if u.Password == password {
			return nil
		}
		return errors.New("invalid credentials")
	}
	return errors.New("no such user")
}

// Run starts the three listeners and the optional metrics listener,
// blocking until ctx is cancelled. On cancellation it stops accepting
// new connections and gives in-flight handlers shutdownGrace to
// finish before returning.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.config.StorageBase, 0o755); err != nil {
		return err
	}

	if s.config.MetricsAddr != "" {
		go metrics.Serve(s.config.MetricsAddr)
	}

	listeners := []struct {
		addr string
		fn   func(net.Conn)
	}{
		{s.config.SMTPAddr, s.handleSMTP},
		{s.config.IMAPAddr, s.handleIMAP},
		{s.config.POP3Addr, s.handlePOP3},
	}

	var lns []net.Listener
	for _, l := range listeners {
		ln, err := net.Listen("tcp", l.addr)
		if err != nil {
			log.Printf("server: could not bind %s: %s\n", l.addr, err)
			continue
		}
		lns = append(lns, ln)
		go s.acceptLoop(ctx, ln, l.fn)
	}
	if len(lns) == 0 {
		return errors.New("server: no listener could bind")
	}

	<-ctx.Done()
	for _, ln := range lns {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Println("server: shutdown grace period elapsed, forcing exit")
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) {
	log.Printf("server: listening on %s\n", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Println(err)
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			handle(conn)
		}()
	}
}

// handleSMTP/handleIMAP/handlePOP3 do not set an upfront whole-connection
// deadline: each protocol's Serve loop refreshes conn's deadline before
// every command read, so the configured timeout bounds idle time
// between commands, not total session length.
func (s *Server) handleSMTP(conn net.Conn) {
	metrics.Connections.WithLabelValues("smtp").Inc()
	smtp.Serve(conn, s.store, s.resolver, s.config.Domain, s.config.Domain, s.authenticate, s.config.SMTPTimeout)
}

func (s *Server) handleIMAP(conn net.Conn) {
	metrics.Connections.WithLabelValues("imap").Inc()
	imap.Serve(conn, s.store, s.authenticate, s.config.IMAPTimeout)
}

func (s *Server) handlePOP3(conn net.Conn) {
	metrics.Connections.WithLabelValues("pop3").Inc()
	pop3.Serve(conn, s.store, s.authenticate, s.config.POP3Timeout)
}
