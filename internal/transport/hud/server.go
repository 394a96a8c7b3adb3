// Package hud serves overlays to renderer clients over websocket. A client subscribes to one
// observer and receives an OVERLAY or CLEAR frame for every display call made for it; it may
// send SETTINGS frames to change that observer's HUD preferences.
package hud

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxelhud.ai/internal/protocol"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/settings"
	"voxelhud.ai/internal/sim/tuning"
)

var errBusy = errors.New("hud: loop busy")

// Backend is the session. Its methods are only called on the loop goroutine.
type Backend interface {
	Observer(id string) (host.Observer, bool)
	UpdateSettings(o host.Observer, s settings.Settings) error
}

type Options struct {
	Defaults tuning.SettingsDefaults
	// Tick reports the loop tick; called on the loop goroutine.
	Tick func() uint64
	// Catalogs, if set, supplies the digests echoed in WELCOME.
	Catalogs func() map[string]string
	// AllowRemote accepts non-loopback clients.
	AllowRemote      bool
	HandshakeTimeout time.Duration
}

type client struct {
	id       string
	observer string
	conn     *websocket.Conn
	out      chan []byte
	done     chan struct{}
}

type Server struct {
	backend Backend
	post    func(fn func()) bool
	opts    Options
	log     *zap.Logger

	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[string]map[*client]struct{}
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ host.Display = (*Server)(nil)

// NewServer wires the server to a session. post runs a function on the loop goroutine and
// reports false when the loop cannot take more work.
func NewServer(b Backend, post func(fn func()) bool, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.Tick == nil {
		opts.Tick = func() uint64 { return 0 }
	}
	return &Server{
		backend: b,
		post:    post,
		opts:    opts,
		log:     logger.Named("hud"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:  map[string]map[*client]struct{}{},
		conns: map[*websocket.Conn]struct{}{},
	}
}

// Show sends an OVERLAY frame to every client subscribed to observerID. It never blocks:
// a lagging client loses its oldest queued frame.
func (s *Server) Show(observerID string, o host.Overlay) error {
	b, err := json.Marshal(protocol.NewOverlay(observerID, o))
	if err != nil {
		return err
	}
	s.broadcast(observerID, b)
	return nil
}

func (s *Server) Clear(observerID string) error {
	b, err := json.Marshal(protocol.NewClear(observerID))
	if err != nil {
		return err
	}
	s.broadcast(observerID, b)
	return nil
}

// Subscribers is the number of clients bound to observerID.
func (s *Server) Subscribers(observerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[observerID])
}

func (s *Server) broadcast(observerID string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.subs[observerID] {
		enqueue(c, b)
	}
}

func enqueue(c *client, b []byte) {
	select {
	case c.out <- b:
		return
	default:
	}
	select {
	case <-c.out:
	default:
	}
	select {
	case c.out <- b:
	default:
	}
}

// Close disconnects every client and waits for their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if !s.track() {
			http.Error(rw, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer s.wg.Done()

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		if !s.addConn(conn) {
			_ = conn.Close()
			return
		}
		defer s.dropConn(conn)

		c := s.handshake(conn)
		if c == nil {
			return
		}
		s.serve(c)
	}
}

func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) addConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != protocol.TypeSubscribe {
		reject(conn, protocol.ErrProtoBadRequest, "expected SUBSCRIBE")
		return nil
	}
	if sub.ProtocolVersion != protocol.Version {
		reject(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return nil
	}
	sub.ObserverID = strings.TrimSpace(sub.ObserverID)
	if sub.ObserverID == "" {
		reject(conn, protocol.ErrProtoBadRequest, "missing observer_id")
		return nil
	}

	welcome, err := s.welcome(sub.ObserverID)
	switch {
	case errors.Is(err, errBusy):
		reject(conn, protocol.ErrBusy, "server busy")
		return nil
	case err != nil:
		reject(conn, protocol.ErrUnknownObserver, err.Error())
		return nil
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}

	maxQ := sub.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 256 {
		maxQ = 256
	}
	c := &client{
		id:       welcome.SessionID,
		observer: sub.ObserverID,
		conn:     conn,
		out:      make(chan []byte, maxQ),
		done:     make(chan struct{}),
	}
	s.log.Info("client subscribed", zap.String("session", c.id), zap.String("observer", c.observer))
	return c
}

// welcome builds the WELCOME frame on the loop goroutine.
func (s *Server) welcome(observerID string) (protocol.WelcomeMsg, error) {
	type result struct {
		msg protocol.WelcomeMsg
		err error
	}
	res := make(chan result, 1)
	ok := s.post(func() {
		o, found := s.backend.Observer(observerID)
		if !found {
			res <- result{err: errors.New("no such observer: " + observerID)}
			return
		}
		res <- result{msg: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       uuid.NewString(),
			ObserverID:      observerID,
			ObserverName:    o.Name(),
			Tick:            s.opts.Tick(),
			Settings:        stateOf(settings.Load(o.Properties(), s.opts.Defaults)),
		}}
	})
	if !ok {
		return protocol.WelcomeMsg{}, errBusy
	}
	select {
	case r := <-res:
		if r.err == nil && s.opts.Catalogs != nil {
			r.msg.Catalogs = s.opts.Catalogs()
		}
		return r.msg, r.err
	case <-time.After(s.opts.HandshakeTimeout):
		return protocol.WelcomeMsg{}, errBusy
	}
}

func (s *Server) serve(c *client) {
	s.mu.Lock()
	if s.subs[c.observer] == nil {
		s.subs[c.observer] = map[*client]struct{}{}
	}
	s.subs[c.observer][c] = struct{}{}
	s.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c)
	}()

	s.readLoop(c)

	s.mu.Lock()
	delete(s.subs[c.observer], c)
	if len(s.subs[c.observer]) == 0 {
		delete(s.subs, c.observer)
	}
	s.mu.Unlock()
	close(c.done)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	<-writerDone
	s.log.Info("client left", zap.String("session", c.id), zap.String("observer", c.observer))
}

func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				// Unblocks the reader.
				_ = c.conn.Close()
				<-c.done
				return
			}
		}
	}
}

func (s *Server) readLoop(c *client) {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeSettings {
			s.sendError(c, protocol.ErrProtoBadRequest, "expected SETTINGS")
			continue
		}
		var m protocol.SettingsMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(c, protocol.ErrBadRequest, err.Error())
			continue
		}
		if m.ProtocolVersion != protocol.Version {
			s.sendError(c, protocol.ErrProtoVersion, "bad protocol_version")
			continue
		}
		s.applySettings(c, m)
	}
}

func (s *Server) applySettings(c *client, m protocol.SettingsMsg) {
	ok := s.post(func() {
		o, found := s.backend.Observer(c.observer)
		if !found {
			s.sendError(c, protocol.ErrUnknownObserver, "observer left")
			return
		}
		next := Merge(settings.Load(o.Properties(), s.opts.Defaults), m)
		if err := s.backend.UpdateSettings(o, next); err != nil {
			s.log.Warn("settings update failed", zap.String("observer", c.observer), zap.Error(err))
			s.sendError(c, protocol.ErrInternal, "settings not saved")
		}
	})
	if !ok {
		s.sendError(c, protocol.ErrBusy, "server busy")
	}
}

func (s *Server) sendError(c *client, code, message string) {
	b, err := json.Marshal(protocol.NewError(code, message))
	if err != nil {
		return
	}
	enqueue(c, b)
}

// Merge applies the fields present in m to cur.
func Merge(cur settings.Settings, m protocol.SettingsMsg) settings.Settings {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cur.Enabled, m.Enabled)
	set(&cur.BlockStates, m.BlockStates)
	set(&cur.Liquids, m.Liquids)
	set(&cur.Passable, m.Passable)
	set(&cur.Preview, m.Preview)
	set(&cur.Icons, m.Icons)
	return cur
}

func stateOf(s settings.Settings) protocol.SettingsState {
	return protocol.SettingsState{
		Enabled:     s.Enabled,
		BlockStates: s.BlockStates,
		Liquids:     s.Liquids,
		Passable:    s.Passable,
		Preview:     s.Preview,
		Icons:       s.Icons,
	}
}

func reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.NewError(code, message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
