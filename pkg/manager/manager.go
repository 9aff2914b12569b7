// Package manager implements the Manager (spec §4.6): a request/reply
// endpoint, co-located with the Router, that answers
// PROVIDE_PUB_SUB_SOCKETS with the concrete connection parameters a
// Portal must use to reach the Router.
//
// The original treats the Manager as capable of answering more than one
// request type via a registered-handler table (SPEC_FULL.md §4.7
// expansion); this module keeps that dispatch shape even though only one
// request type is implemented, so the extension point the original
// exposes stays visible.
package manager

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/bluefin-robotics/middleware/pkg/wire"
	"github.com/clarketm/json"
	logging "github.com/sirupsen/logrus"
)

// RequestType names a Manager request.
type RequestType string

// ProvidePubSubSockets is the one request type spec.md names.
const ProvidePubSubSockets RequestType = "ProvidePubSubSockets"

// Request is the envelope every Manager request carries.
type Request struct {
	Type RequestType `json:"type"`
}

// HandlerFunc answers one request type with a JSON-marshalable reply
// value, or an error that is reported back to the caller as a
// ConfigurationError-worthy string.
type HandlerFunc func(Request) (any, error)

type wireReply struct {
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Manager is a request/reply server bound to one TCP address.
type Manager struct {
	addr     string
	handlers map[RequestType]HandlerFunc
	log      *logging.Entry
}

// New returns a Manager that will listen on addr once Serve is called.
func New(addr string) *Manager {
	return &Manager{
		addr:     addr,
		handlers: make(map[RequestType]HandlerFunc),
		log:      logging.WithFields(logging.Fields{"component": "manager", "addr": addr}),
	}
}

// Handle registers the handler for a request type. Registering the same
// type twice replaces the previous handler.
func (m *Manager) Handle(t RequestType, h HandlerFunc) {
	m.handlers[t] = h
}

// Serve binds addr and answers requests until ctx is done. It returns the
// actual bound address, which may differ from the configured addr when an
// ephemeral port ("127.0.0.1:0") was requested.
func (m *Manager) Serve(ctx context.Context) (string, error) {
	lis, err := net.Listen("tcp", m.addr)
	if err != nil {
		return "", fmt.Errorf("manager: listen %s: %w", m.addr, err)
	}
	boundAddr := lis.Addr().String()
	m.log = m.log.WithField("bound", boundAddr)
	m.log.Info("manager listening")

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.WithError(err).Warn("manager accept failed")
				continue
			}
			go m.handleConn(conn)
		}
	}()

	return boundAddr, nil
}

func (m *Manager) handleConn(conn net.Conn) {
	defer conn.Close()

	frame, err := wire.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		m.log.WithError(err).Debug("manager read failed")
		return
	}
	body, err := wire.DecodeManagerFrame(frame)
	if err != nil {
		m.log.WithError(err).Warn("manager received malformed frame")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		m.log.WithError(err).Warn("manager received unparseable request")
		return
	}

	reply := m.dispatch(req)
	replyBody, err := json.Marshal(reply)
	if err != nil {
		m.log.WithError(err).Error("manager failed to marshal reply")
		return
	}
	if err := wire.WriteMessage(conn, wire.EncodeManagerFrame(replyBody)); err != nil {
		m.log.WithError(err).Debug("manager write failed")
	}
}

func (m *Manager) dispatch(req Request) wireReply {
	h, ok := m.handlers[req.Type]
	if !ok {
		return wireReply{Error: fmt.Sprintf("manager: unknown request type %q", req.Type)}
	}
	result, err := h(req)
	if err != nil {
		return wireReply{Error: err.Error()}
	}
	body, err := json.Marshal(result)
	if err != nil {
		return wireReply{Error: err.Error()}
	}
	return wireReply{Body: body}
}
