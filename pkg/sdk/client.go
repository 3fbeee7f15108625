// Package sdk provides the client-side library for the Celerix Mint ledger.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

const (
	dialTimeout  = 10 * time.Second
	replyTimeout = 30 * time.Second
	maxAttempts  = 3
)

// ErrRemote wraps error replies whose code has no ledger sentinel.
var ErrRemote = errors.New("remote error")

// Client is a remote client for the ledger daemon.
type Client struct {
	addr       string
	disableTLS bool
	conn       net.Conn
	reader     *bufio.Reader
	mu         sync.Mutex // Protects concurrent access to the connection
}

var _ Ledger = (*Client)(nil)

// Connect establishes a TLS connection to a ledger daemon, or plain TCP when
// disableTLS is set.
func Connect(addr string, disableTLS bool) (*Client, error) {
	c := &Client{addr: addr, disableTLS: disableTLS}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 60 * time.Second,
	}

	var (
		conn net.Conn
		err  error
	)
	if c.disableTLS {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // daemons use self-signed certs
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// roundTrip sends one command line and returns the payload of an OK reply.
// Read-only commands are retried with backoff on transport errors; mutating
// commands are sent once so a lost reply never repeats a transition.
func (c *Client) roundTrip(ctx context.Context, cmd string, idempotent bool) (string, error) {
	if strings.ContainsAny(cmd, "\r\n") {
		return "", fmt.Errorf("command spans more than one line: %w", ledger.ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	attempts := 1
	if idempotent {
		attempts = maxAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if c.conn == nil {
			if err = c.reconnect(); err != nil {
				err = fmt.Errorf("reconnect failed: %w", err)
				time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
				continue
			}
		}

		deadline := time.Now().Add(replyTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)

		var line string
		if _, err = fmt.Fprint(c.conn, cmd+"\n"); err == nil {
			if line, err = c.reader.ReadString('\n'); err == nil {
				return parseReply(strings.TrimSpace(line))
			}
		}

		log.Printf("[sdk] attempt %d failed: %v", i+1, err)
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		if i+1 < attempts {
			time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

func parseReply(line string) (string, error) {
	switch {
	case line == "OK":
		return "", nil
	case strings.HasPrefix(line, "OK "):
		return strings.TrimPrefix(line, "OK "), nil
	case strings.HasPrefix(line, "ERR "):
		code, msg, _ := strings.Cut(strings.TrimPrefix(line, "ERR "), " ")
		if sentinel := ledger.FromCode(code); sentinel != nil {
			return "", fmt.Errorf("%s: %w", msg, sentinel)
		}
		return "", fmt.Errorf("%s %s: %w", code, msg, ErrRemote)
	default:
		return "", fmt.Errorf("unexpected reply %q: %w", line, ErrRemote)
	}
}

// call runs cmd and decodes the JSON payload of the reply into T.
func call[T any](ctx context.Context, c *Client, cmd string, idempotent bool) (T, error) {
	var out T
	payload, err := c.roundTrip(ctx, cmd, idempotent)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}

// checkIDs rejects identities that cannot travel as one protocol token.
func checkIDs(ids ...ledger.Identity) error {
	for _, id := range ids {
		if err := ledger.ValidIdentity(id); err != nil {
			return err
		}
	}
	return nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) CreateProfile(ctx context.Context, caller ledger.Identity, name string, age uint8) (ledger.ProfileRecord, error) {
	if err := checkIDs(caller); err != nil {
		return ledger.ProfileRecord{}, err
	}
	body, err := encode(ProfileParams{Name: name, Age: age})
	if err != nil {
		return ledger.ProfileRecord{}, err
	}
	return call[ledger.ProfileRecord](ctx, c, fmt.Sprintf("PROFILE_CREATE %s %s", caller, body), false)
}

func (c *Client) UpdateProfile(ctx context.Context, caller, owner ledger.Identity, name string, age uint8) (ledger.ProfileRecord, error) {
	if err := checkIDs(caller, owner); err != nil {
		return ledger.ProfileRecord{}, err
	}
	body, err := encode(ProfileParams{Name: name, Age: age})
	if err != nil {
		return ledger.ProfileRecord{}, err
	}
	return call[ledger.ProfileRecord](ctx, c, fmt.Sprintf("PROFILE_UPDATE %s %s %s", caller, owner, body), false)
}

func (c *Client) AddBalance(ctx context.Context, caller, owner ledger.Identity, amount uint64) (ledger.ProfileRecord, error) {
	if err := checkIDs(caller, owner); err != nil {
		return ledger.ProfileRecord{}, err
	}
	cmd := fmt.Sprintf("BALANCE_ADD %s %s %s", caller, owner, strconv.FormatUint(amount, 10))
	return call[ledger.ProfileRecord](ctx, c, cmd, false)
}

func (c *Client) GetProfile(ctx context.Context, owner ledger.Identity) (ledger.ProfileRecord, error) {
	if err := checkIDs(owner); err != nil {
		return ledger.ProfileRecord{}, err
	}
	return call[ledger.ProfileRecord](ctx, c, "PROFILE_GET "+string(owner), true)
}

func (c *Client) ListProfiles(ctx context.Context) ([]ledger.ProfileRecord, error) {
	return call[[]ledger.ProfileRecord](ctx, c, "PROFILE_LIST", true)
}

func (c *Client) CreateToken(ctx context.Context, authority ledger.Identity, params ledger.TokenParams) (ledger.TokenDescriptor, error) {
	if err := checkIDs(authority, params.TokenID); err != nil {
		return ledger.TokenDescriptor{}, err
	}
	body, err := encode(params)
	if err != nil {
		return ledger.TokenDescriptor{}, err
	}
	return call[ledger.TokenDescriptor](ctx, c, fmt.Sprintf("TOKEN_CREATE %s %s", authority, body), false)
}

func (c *Client) GetToken(ctx context.Context, tokenID ledger.Identity) (ledger.TokenDescriptor, error) {
	if err := checkIDs(tokenID); err != nil {
		return ledger.TokenDescriptor{}, err
	}
	return call[ledger.TokenDescriptor](ctx, c, "TOKEN_GET "+string(tokenID), true)
}

// RequestDailyMint is safe to retry from the caller's side: a repeat on the
// same day is answered with ErrAlreadyClaimedToday.
func (c *Client) RequestDailyMint(ctx context.Context, caller ledger.Identity) (ledger.Grant, error) {
	if err := checkIDs(caller); err != nil {
		return ledger.Grant{}, err
	}
	return call[ledger.Grant](ctx, c, "MINT_DAILY "+string(caller), false)
}

func (c *Client) Eligibility(ctx context.Context, holder ledger.Identity) (ledger.Eligibility, error) {
	if err := checkIDs(holder); err != nil {
		return ledger.Eligibility{}, err
	}
	return call[ledger.Eligibility](ctx, c, "ELIGIBILITY "+string(holder), true)
}

func (c *Client) Holding(ctx context.Context, token, holder ledger.Identity) (ledger.Holding, error) {
	if err := checkIDs(token, holder); err != nil {
		return ledger.Holding{}, err
	}
	return call[ledger.Holding](ctx, c, fmt.Sprintf("HOLDING %s %s", token, holder), true)
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if err := c.reconnect(); err != nil {
			return err
		}
	}
	c.conn.SetDeadline(time.Now().Add(replyTimeout))
	if _, err := fmt.Fprint(c.conn, "PING\n"); err != nil {
		return err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != "PONG" {
		return fmt.Errorf("unexpected ping reply %q: %w", line, ErrRemote)
	}
	return ctx.Err()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}
