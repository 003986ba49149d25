// Package memcached is the external collaborator named but explicitly
// scoped out of the core (spec §1, §6): a minimal text-protocol client
// that knows only enough of the memcached wire format to satisfy
// core.ServerHandle's stats() probe. It implements no get/set/delete
// verbs, no connection pooling, and no retry — those remain out of scope.
//
// Connection lifecycle (dial with timeout, bounded read deadline,
// idempotent Close) follows the teacher's transport package idiom of
// never letting a single slow peer block a caller indefinitely.
package memcached

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kvshard/memshard/core"
)

// Client is a bare stats()-only memcached handle over a persistent TCP
// connection, reconnecting lazily on the next probe if the connection was
// dropped.
type Client struct {
	addr   string
	dialTO time.Duration
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// New returns a Client that will dial addr (host:port) lazily on first
// use. dialTimeout bounds the TCP handshake; per-call read/write
// deadlines are derived from the context passed to Stats.
func New(addr string, dialTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	return &Client{addr: addr, dialTO: dialTimeout}
}

var _ core.ServerHandle = (*Client)(nil)

func (c *Client) ensureConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, net.ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTO)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) dropConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// Stats issues the memcached "stats" command and parses the
// "STAT <name> <value>\r\n" lines up to "END\r\n", extracting exactly the
// fields the load manager understands (spec §3); any other stat name is
// ignored. ctx's deadline, if any, bounds the round trip.
func (c *Client) Stats(ctx context.Context) (core.StatsResult, error) {
	var zero core.StatsResult

	conn, err := c.ensureConn()
	if err != nil {
		return zero, err
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	}

	if _, err := conn.Write([]byte("stats\r\n")); err != nil {
		c.dropConn()
		return zero, err
	}

	result, err := parseStats(conn)
	if err != nil {
		c.dropConn()
		return zero, err
	}
	return result, nil
}

func parseStats(conn net.Conn) (core.StatsResult, error) {
	var result core.StatsResult
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "END" {
			return result, nil
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || fields[0] != "STAT" {
			continue
		}
		name, raw := fields[1], fields[2]
		switch name {
		case "rusage_user":
			result.RusageUser, _ = strconv.ParseFloat(raw, 64)
		case "rusage_system":
			result.RusageSystem, _ = strconv.ParseFloat(raw, 64)
		case "cmd_get":
			result.CmdGet, _ = strconv.ParseInt(raw, 10, 64)
		case "cmd_set":
			result.CmdSet, _ = strconv.ParseInt(raw, 10, 64)
		case "cmd_flush":
			result.CmdFlush, _ = strconv.ParseInt(raw, 10, 64)
		case "cmd_touch":
			result.CmdTouch, _ = strconv.ParseInt(raw, 10, 64)
		case "uptime":
			result.Uptime, _ = strconv.ParseFloat(raw, 64)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, fmt.Errorf("memcached: connection closed before END")
}

// Close idempotently releases the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
