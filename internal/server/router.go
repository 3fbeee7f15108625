// Package server exposes the ledger over a line-oriented TCP/TLS protocol.
//
// Each request is one line: a command word followed by its arguments. The
// last argument of PROFILE_CREATE, PROFILE_UPDATE and TOKEN_CREATE is a JSON
// object and may contain spaces. Replies are "OK", "OK <json>", "PONG", or
// "ERR <code> <message>".
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-mint/pkg/ledger"
	"github.com/celerix-dev/celerix-mint/pkg/sdk"
)

const (
	maxConnections = 100
	idleTimeout    = 30 * time.Second
	sessionTimeout = 5 * time.Minute
	commandTimeout = 30 * time.Second
)

type command struct {
	args int
	run  func(ctx context.Context, args []string) (any, error)
}

type Router struct {
	ledger   sdk.LedgerService
	host     string
	cert     *tls.Certificate
	commands map[string]command

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// DefaultHost keeps the trusted-caller protocol on the loopback interface.
const DefaultHost = "127.0.0.1"

func NewRouter(l sdk.LedgerService) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		ledger: l,
		host:   DefaultHost,
		conns:  make(map[net.Conn]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	r.commands = r.commandTable()
	return r
}

// SetHost sets the interface Listen binds. An empty host binds all interfaces.
func (r *Router) SetHost(host string) {
	r.host = host
}

// SetCertificate enables TLS on the listener.
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound listener address, or nil before Listen.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen serves the protocol on host:port until Stop is called.
func (r *Router) Listen(port string) error {
	addr := net.JoinHostPort(r.host, port)
	var (
		listener net.Listener
		err      error
	)
	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}, MinVersion: tls.VersionTLS12}
		listener, err = tls.Listen("tcp", addr, config)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()

	semaphore := make(chan struct{}, maxConnections)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("[server] accept: %v", err)
			continue
		}

		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			conn.Close()
			return nil
		}
		r.wg.Add(1)
		r.mu.Unlock()

		conn.SetDeadline(time.Now().Add(sessionTimeout))
		go func(c net.Conn) {
			defer r.wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (r *Router) Stop() error {
	r.mu.Lock()
	r.stopped = true
	var err error
	if r.listener != nil {
		err = r.listener.Close()
	}
	for c := range r.conns {
		c.Close()
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return err
}

func (r *Router) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conns[conn] = struct{}{}
	return true
}

func (r *Router) untrack(conn net.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	r.mu.Unlock()
}

// HandleConnection serves commands from conn until QUIT, EOF or an idle
// timeout. It closes conn on return.
func (r *Router) HandleConnection(conn net.Conn) {
	defer conn.Close()
	if !r.track(conn) {
		return
	}
	defer r.untrack(conn)

	reader := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("[server] %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		name, rest := splitCommand(line)
		if name == "" {
			continue
		}
		switch name {
		case "PING":
			fmt.Fprintln(conn, "PONG")
			continue
		case "QUIT":
			return
		}

		reply := r.dispatch(name, rest)
		if _, err := io.WriteString(conn, reply+"\n"); err != nil {
			return
		}
	}
}

func (r *Router) dispatch(name, rest string) string {
	cmd, ok := r.commands[name]
	if !ok {
		return errReply(fmt.Errorf("unknown command %s: %w", name, ledger.ErrInvalidArgument))
	}
	args := splitArgs(rest, cmd.args)
	if len(args) != cmd.args {
		return errReply(fmt.Errorf("%s takes %d arguments: %w", name, cmd.args, ledger.ErrInvalidArgument))
	}

	ctx, cancel := context.WithTimeout(r.ctx, commandTimeout)
	defer cancel()

	out, err := cmd.run(ctx, args)
	if err != nil {
		return errReply(err)
	}
	if out == nil {
		return "OK"
	}
	res, err := json.Marshal(out)
	if err != nil {
		return errReply(fmt.Errorf("encode reply: %w", err))
	}
	return "OK " + string(res)
}

func errReply(err error) string {
	msg := strings.NewReplacer("\r", " ", "\n", " ").Replace(err.Error())
	return fmt.Sprintf("ERR %s %s", ledger.Code(err), msg)
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")
	return strings.ToUpper(name), strings.TrimSpace(rest)
}

// splitArgs splits s into at most n fields; the last field keeps its spaces.
func splitArgs(s string, n int) []string {
	var out []string
	rest := strings.TrimSpace(s)
	for rest != "" && len(out) < n-1 {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			break
		}
		out = append(out, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func decodeArg(raw string, dst any) error {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("invalid json value: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

func (r *Router) commandTable() map[string]command {
	l := r.ledger
	return map[string]command{
		"PROFILE_CREATE": {2, func(ctx context.Context, a []string) (any, error) {
			var p sdk.ProfileParams
			if err := decodeArg(a[1], &p); err != nil {
				return nil, err
			}
			return l.CreateProfile(ctx, ledger.Identity(a[0]), p.Name, p.Age)
		}},
		"PROFILE_UPDATE": {3, func(ctx context.Context, a []string) (any, error) {
			var p sdk.ProfileParams
			if err := decodeArg(a[2], &p); err != nil {
				return nil, err
			}
			return l.UpdateProfile(ctx, ledger.Identity(a[0]), ledger.Identity(a[1]), p.Name, p.Age)
		}},
		"PROFILE_GET": {1, func(ctx context.Context, a []string) (any, error) {
			return l.GetProfile(ctx, ledger.Identity(a[0]))
		}},
		"PROFILE_LIST": {0, func(ctx context.Context, _ []string) (any, error) {
			return l.ListProfiles(ctx)
		}},
		"BALANCE_ADD": {3, func(ctx context.Context, a []string) (any, error) {
			amount, err := strconv.ParseUint(a[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("amount %q: %w", a[2], ledger.ErrInvalidArgument)
			}
			return l.AddBalance(ctx, ledger.Identity(a[0]), ledger.Identity(a[1]), amount)
		}},
		"TOKEN_CREATE": {2, func(ctx context.Context, a []string) (any, error) {
			var p ledger.TokenParams
			if err := decodeArg(a[1], &p); err != nil {
				return nil, err
			}
			return l.CreateToken(ctx, ledger.Identity(a[0]), p)
		}},
		"TOKEN_GET": {1, func(ctx context.Context, a []string) (any, error) {
			return l.GetToken(ctx, ledger.Identity(a[0]))
		}},
		"MINT_DAILY": {1, func(ctx context.Context, a []string) (any, error) {
			return l.RequestDailyMint(ctx, ledger.Identity(a[0]))
		}},
		"ELIGIBILITY": {1, func(ctx context.Context, a []string) (any, error) {
			return l.Eligibility(ctx, ledger.Identity(a[0]))
		}},
		"HOLDING": {2, func(ctx context.Context, a []string) (any, error) {
			return l.Holding(ctx, ledger.Identity(a[0]), ledger.Identity(a[1]))
		}},
	}
}
