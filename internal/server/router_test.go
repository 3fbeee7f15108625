package server

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/internal/service"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

func startRouter(t *testing.T) (*Router, string) {
	t.Helper()
	l := service.New(engine.NewMemStore(nil, nil), service.Options{
		Clock:  service.ClockFunc(func() int64 { return 3*ledger.SecondsPerDay + 10 }),
		Logger: log.New(io.Discard, "", 0),
	})
	router := NewRouter(l)

	go router.Listen("0")

	var port string
	for i := 0; i < 20; i++ {
		time.Sleep(50 * time.Millisecond)
		router.mu.Lock()
		if router.listener != nil {
			port = fmt.Sprintf("%d", router.listener.Addr().(*net.TCPAddr).Port)
			router.mu.Unlock()
			break
		}
		router.mu.Unlock()
	}
	if port == "" {
		t.Fatalf("Server did not start in time")
	}
	t.Cleanup(func() { router.Stop() })
	return router, port
}

type session struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, port string) *session {
	t.Helper()
	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &session{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (s *session) send(line string) string {
	s.t.Helper()
	fmt.Fprintf(s.conn, "%s\n", line)
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := s.reader.ReadString('\n')
	if err != nil {
		s.t.Fatalf("read reply to %q: %v", line, err)
	}
	return strings.TrimSuffix(reply, "\n")
}

func TestRouter_TCP_Commands(t *testing.T) {
	_, port := startRouter(t)
	s := dial(t, port)

	if got := s.send("PING"); got != "PONG" {
		t.Errorf("Expected PONG, got %q", got)
	}

	got := s.send(`PROFILE_CREATE alice {"name": "Alice  A", "age": 30}`)
	if !strings.HasPrefix(got, "OK ") || !strings.Contains(got, `"display_name":"Alice  A"`) {
		t.Errorf("unexpected create reply %q", got)
	}

	got = s.send(`PROFILE_CREATE alice {"name": "again", "age": 1}`)
	if !strings.HasPrefix(got, "ERR already_exists ") {
		t.Errorf("Expected already_exists, got %q", got)
	}

	got = s.send(`PROFILE_UPDATE mallory alice {"name": "x", "age": 1}`)
	if !strings.HasPrefix(got, "ERR unauthorized ") {
		t.Errorf("Expected unauthorized, got %q", got)
	}

	got = s.send("BALANCE_ADD alice alice 18446744073709551615")
	if !strings.HasPrefix(got, "OK ") {
		t.Errorf("unexpected balance reply %q", got)
	}
	got = s.send("BALANCE_ADD alice alice 1")
	if !strings.HasPrefix(got, "ERR overflow ") {
		t.Errorf("Expected overflow, got %q", got)
	}

	got = s.send("PROFILE_GET nobody")
	if !strings.HasPrefix(got, "ERR not_found ") {
		t.Errorf("Expected not_found, got %q", got)
	}

	got = s.send("PROFILE_LIST")
	if !strings.HasPrefix(got, `OK [{"owner_id":"alice"`) {
		t.Errorf("unexpected list reply %q", got)
	}
}

func TestRouter_DailyMint(t *testing.T) {
	_, port := startRouter(t)
	s := dial(t, port)

	if got := s.send("MINT_DAILY alice"); !strings.HasPrefix(got, "ERR not_found ") {
		t.Errorf("Expected not_found before token exists, got %q", got)
	}

	got := s.send(`TOKEN_CREATE issuer {"token_id": "celerix", "name": "Celerix", "symbol": "CLX", "decimals": 2}`)
	if !strings.HasPrefix(got, "OK ") {
		t.Fatalf("unexpected token reply %q", got)
	}

	got = s.send("MINT_DAILY alice")
	if !strings.HasPrefix(got, "OK ") || !strings.Contains(got, `"amount":100`) || !strings.Contains(got, `"last_mint_day":3`) {
		t.Errorf("unexpected grant reply %q", got)
	}
	if got := s.send("MINT_DAILY alice"); !strings.HasPrefix(got, "ERR already_claimed_today ") {
		t.Errorf("Expected already_claimed_today, got %q", got)
	}

	got = s.send("HOLDING celerix alice")
	if !strings.Contains(got, `"amount":100`) {
		t.Errorf("unexpected holding reply %q", got)
	}
	got = s.send("ELIGIBILITY alice")
	if !strings.Contains(got, `"state":"exhausted"`) {
		t.Errorf("unexpected eligibility reply %q", got)
	}
	got = s.send("TOKEN_GET celerix")
	if !strings.Contains(got, `"total_supply":100`) {
		t.Errorf("unexpected token reply %q", got)
	}
}

func TestRouter_ConcurrentConnections(t *testing.T) {
	_, port := startRouter(t)

	conns := make([]net.Conn, 0)
	for i := 0; i < 110; i++ {
		conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, 100*time.Millisecond)
		if err == nil {
			conns = append(conns, conn)
		}
	}
	for _, c := range conns {
		c.Close()
	}

	s := dial(t, port)
	if got := s.send("PING"); got != "PONG" {
		t.Errorf("server unresponsive after connection burst: %q", got)
	}
}

func TestRouter_MalformedCommands(t *testing.T) {
	_, port := startRouter(t)
	s := dial(t, port)

	cases := []string{
		"PROFILE_CREATE alice",
		"PROFILE_CREATE alice {invalid}",
		`PROFILE_CREATE alice {"name": "x", "age": 300}`,
		"BALANCE_ADD alice alice -5",
		"NOPE",
		"PROFILE_LIST extra",
	}
	for _, line := range cases {
		if got := s.send(line); !strings.HasPrefix(got, "ERR invalid_argument ") {
			t.Errorf("%q: expected invalid_argument, got %q", line, got)
		}
	}

	if got := s.send("PING"); got != "PONG" {
		t.Error("Did not receive PONG")
	}
}

func TestRouter_StopClosesSessions(t *testing.T) {
	router, port := startRouter(t)
	s := dial(t, port)
	if got := s.send("PING"); got != "PONG" {
		t.Fatalf("Expected PONG, got %q", got)
	}

	if err := router.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := s.reader.ReadString('\n'); err == nil {
		t.Error("expected session to be closed")
	}
}

func TestSplitArgs(t *testing.T) {
	got := splitArgs(`alice  {"name": "a b"}`, 2)
	if len(got) != 2 || got[0] != "alice" || got[1] != `{"name": "a b"}` {
		t.Errorf("unexpected split %q", got)
	}
	if got := splitArgs("", 1); len(got) != 0 {
		t.Errorf("expected no args, got %q", got)
	}
}

func TestRouter_BindsLoopbackByDefault(t *testing.T) {
	router, _ := startRouter(t)
	addr, ok := router.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("Expected TCP address, got %v", router.Addr())
	}
	if !addr.IP.IsLoopback() {
		t.Errorf("Expected loopback listener, got %s", addr.IP)
	}
}
