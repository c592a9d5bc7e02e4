package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
)

// maxDatagramSize bounds a single IPC request or reply.
const maxDatagramSize = 64 * 1024

// Request couples a decoded envelope with a reply path. Reply is nil
// for senders that did not bind their own socket.
type Request struct {
	Msg *Message

	// Reply sends a control reply back to the requester. Nil for
	// one-way configuration messages.
	Reply func(*CtlReply)
}

// Server owns the daemon side of the IPC socket. Decoded requests are
// delivered to the channel returned by Requests; the dispatch loop
// consumes them so that configuration is serialised with protocol work.
type Server struct {
	path string
	conn *net.UnixConn
	log  *slog.Logger

	requests chan Request
}

// NewServer binds the unix datagram socket at path, replacing any stale
// socket file from a previous run.
func NewServer(path string, logger *slog.Logger) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale ipc socket %s: %w", path, err)
	}

	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("listen ipc socket %s: %w", path, err)
	}

	return &Server{
		path:     path,
		conn:     conn,
		log:      logger,
		requests: make(chan Request, 64),
	}, nil
}

// Requests returns the channel of decoded inbound requests.
func (s *Server) Requests() <-chan Request { return s.requests }

// Run reads datagrams until ctx is cancelled. Malformed datagrams are
// logged and dropped; they never reach the dispatch loop.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			if ctx.Err() != nil {
				close(s.requests)
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				close(s.requests)
				return nil
			}
			s.log.Warn("ipc read", slog.String("error", err.Error()))
			continue
		}

		msg := &Message{}
		if err := json.Unmarshal(buf[:n], msg); err != nil {
			s.log.Warn("ipc: dropping malformed datagram",
				slog.Int("bytes", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		req := Request{Msg: msg}
		if from != nil && from.Name != "" {
			replyAddr := *from
			req.Reply = func(r *CtlReply) { s.sendReply(&replyAddr, r) }
		}

		select {
		case s.requests <- req:
		case <-ctx.Done():
			close(s.requests)
			return nil
		}
	}
}

// sendReply delivers a control reply to the client's bound socket.
func (s *Server) sendReply(to *net.UnixAddr, reply *CtlReply) {
	raw, err := json.Marshal(reply)
	if err != nil {
		s.log.Error("ipc: encode reply", slog.String("error", err.Error()))
		return
	}
	if _, err := s.conn.WriteToUnix(raw, to); err != nil {
		s.log.Warn("ipc: send reply",
			slog.String("to", to.Name),
			slog.String("error", err.Error()),
		)
	}
}

// Close releases the socket and removes the socket file.
func (s *Server) Close() error {
	err := s.conn.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
