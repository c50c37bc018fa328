package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lastping/lastpingd/internal/liveness"
	"github.com/lastping/lastpingd/internal/principal"
)

const defaultListLimit = 20

// controlRequest is one admin action envelope consumed by pingctl.
type controlRequest struct {
	Action    string `json:"action"`
	Limit     int    `json:"limit,omitempty"`
	Principal string `json:"principal,omitempty"`
}

// controlResponse is one admin action result envelope emitted by pingctl.
type controlResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type statusView struct {
	Node            string `json:"node"`
	Uptime          string `json:"uptime"`
	Accounts        int    `json:"accounts"`
	Expired         int    `json:"expired"`
	Revision        uint64 `json:"revision"`
	SnapshotEnabled bool   `json:"snapshot_enabled"`
}

// serveAdminControl exposes a TCP JSON request/response endpoint for pingctl.
func (s *Service) serveAdminControl(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info().Str("node", s.cfg.ID).Str("addr", ln.Addr().String()).Msg("admin_listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleAdminConn(conn)
	}
}

// handleAdminConn decodes one request per line and writes one response per line.
func (s *Service) handleAdminConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := s.adminClientCount.Add(1)
	log.Info().Str("remote", remote).Int64("active_clients", active).Msg("admin_client_connected")
	defer func() {
		remaining := s.adminClientCount.Add(-1)
		log.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("admin_client_disconnected")
	}()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("admin_read_failed")
			}
			return
		}
		var req controlRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeControlResponse(conn, controlResponse{OK: false, Error: err.Error()})
			continue
		}
		resp := s.handleControlRequest(req)
		if err := writeControlResponse(conn, resp); err != nil {
			log.Warn().Err(err).Msg("admin_write_failed")
			return
		}
	}
}

// handleControlRequest dispatches RPC-like admin actions to service methods.
func (s *Service) handleControlRequest(req controlRequest) controlResponse {
	switch req.Action {
	case "status":
		stats := s.registry.Stats()
		return controlResponse{OK: true, Data: statusView{
			Node:            s.cfg.ID,
			Uptime:          time.Since(s.started).String(),
			Accounts:        stats.Accounts,
			Expired:         stats.Expired,
			Revision:        stats.Revision,
			SnapshotEnabled: s.store.Enabled(),
		}}
	case "list_accounts":
		return controlResponse{OK: true, Data: s.listAccounts(req.Limit)}
	case "account":
		target, err := principal.Parse(strings.TrimSpace(req.Principal))
		if err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		view, err := s.registry.Status(target)
		if err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		return controlResponse{OK: true, Data: view}
	case "persist":
		if !s.store.Enabled() {
			return controlResponse{OK: false, Error: "snapshot persistence is disabled"}
		}
		if err := s.persist(true); err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		return controlResponse{OK: true, Data: map[string]any{
			"revision": s.registry.Revision(),
		}}
	default:
		return controlResponse{OK: false, Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
}

// listAccounts returns a bounded slice of persisted-form records.
func (s *Service) listAccounts(limit int) []liveness.Record {
	if limit <= 0 {
		limit = defaultListLimit
	}
	records, _ := s.registry.Snapshot()
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

func writeControlResponse(w io.Writer, resp controlResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
