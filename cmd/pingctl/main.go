package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// controlRequest mirrors the daemon admin-control envelope.
type controlRequest struct {
	Action    string `json:"action"`
	Limit     int    `json:"limit,omitempty"`
	Principal string `json:"principal,omitempty"`
}

type controlResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// adminClient holds one persistent admin-control connection.
type adminClient struct {
	addr string
	conn net.Conn
	r    *bufio.Reader
}

func newAdminClient(addr string) *adminClient {
	return &adminClient{addr: strings.TrimSpace(addr)}
}

func (c *adminClient) call(req controlRequest) (json.RawMessage, error) {
	if err := c.ensureConn(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return nil, err
	}
	payload = append(payload, '\n')
	if _, err := c.conn.Write(payload); err != nil {
		c.resetConn()
		return nil, err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return nil, err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.resetConn()
		return nil, err
	}
	var resp controlResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return resp.Data, nil
}

func (c *adminClient) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, 3*time.Second)
	if err != nil {
		return err
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

func (c *adminClient) resetConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.r = nil
}

func (c *adminClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

func buildRequest(action, principalText string, limit int) (controlRequest, error) {
	switch action {
	case "status", "persist":
		return controlRequest{Action: action}, nil
	case "list_accounts":
		return controlRequest{Action: action, Limit: limit}, nil
	case "account":
		if strings.TrimSpace(principalText) == "" {
			return controlRequest{}, errors.New("account action requires -principal")
		}
		return controlRequest{Action: action, Principal: strings.TrimSpace(principalText)}, nil
	default:
		return controlRequest{}, fmt.Errorf("unknown action: %s", action)
	}
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9201", "daemon admin-control address")
	action := flag.String("action", "status", "status | list_accounts | account | persist")
	principalText := flag.String("principal", "", "target principal for -action account")
	limit := flag.Int("limit", 0, "list bound for -action list_accounts")
	flag.Parse()

	req, err := buildRequest(*action, *principalText, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pingctl: %v\n", err)
		os.Exit(2)
	}

	client := newAdminClient(*addr)
	defer client.Close()

	data, err := client.call(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pingctl: %v\n", err)
		os.Exit(1)
	}

	var pretty any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &pretty); err != nil {
			fmt.Fprintf(os.Stderr, "pingctl: decode response: %v\n", err)
			os.Exit(1)
		}
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pingctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
