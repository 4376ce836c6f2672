package telnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/embermud/embermud/internal/player"
	"github.com/embermud/embermud/internal/session"
)

// connState is the handler's position in its per-connection state machine.
type connState int

const (
	stateLogin connState = iota
	statePlaying
	// stateTransferAsk: this connection owns a session another login wants;
	// the player must answer yes or no.
	stateTransferAsk
	// stateTransferWait: this connection is the incoming login, holding
	// until the bound connection decides.
	stateTransferWait
)

// ConnectionHandler handles a single telnet connection. It implements
// session.Conn, so the session core can write to it, deliver handshake
// control messages, and attach or detach its player record.
type ConnectionHandler struct {
	conn      net.Conn
	reader    *bufio.Reader
	deps      Deps
	connID    ulid.ULID
	ctrlCh    chan session.ControlMessage
	closeOnce sync.Once
	quitting  bool

	mu        sync.Mutex
	rec       *player.Record
	authed    bool
	username  string
	state     connState
	prevState connState
	loginAt   time.Time
}

// NewConnectionHandler creates a new handler.
func NewConnectionHandler(conn net.Conn, deps Deps) *ConnectionHandler {
	return &ConnectionHandler{
		conn:   conn,
		reader: bufio.NewReader(conn),
		deps:   deps,
		connID: session.NewConnID(),
		ctrlCh: make(chan session.ControlMessage, 8),
	}
}

// Write sends text to the client. The empty string is a wake-up no-op.
func (h *ConnectionHandler) Write(text string) error {
	if text == "" {
		_, err := h.conn.Write(nil)
		return err
	}
	_, err := fmt.Fprintln(h.conn, text)
	return err
}

// Notify delivers a control message without blocking.
func (h *ConnectionHandler) Notify(msg session.ControlMessage) {
	select {
	case h.ctrlCh <- msg:
	default:
		slog.Warn("control message dropped: channel full",
			"conn_id", h.connID.String(),
			"kind", msg.Kind.String(),
			"username", msg.Username,
		)
	}
}

// Attach installs the player record this connection now represents.
func (h *ConnectionHandler) Attach(rec *player.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec = rec
	h.username = rec.Username
	h.authed = true
}

// Detach marks the connection unauthenticated and drops its record.
func (h *ConnectionHandler) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec = nil
	h.authed = false
	h.state = stateLogin
}

// Close tears the connection down. Safe to call more than once.
func (h *ConnectionHandler) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.conn.Close()
	})
	return err
}

// Handle processes the connection until closed.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	defer func() {
		if err := h.Close(); err != nil {
			slog.Debug("error closing connection", "error", err)
		}
	}()

	h.send("Welcome to EmberMUD!")
	h.send("Use: connect <username> <password>  or  create <username> <password>")

	lineCh := make(chan string)
	// Buffered so the reader goroutine can report its final error and exit
	// even after Handle has returned and nobody is receiving.
	errCh := make(chan error, 1)

	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read error",
					"conn_id", h.connID.String(),
					"error", err,
				)
			}
			h.handleDisconnect()
			return

		case line := <-lineCh:
			h.processLine(line)
			if h.quitting {
				return
			}

		case msg := <-h.ctrlCh:
			h.processControl(msg)
		}
	}
}

// handleDisconnect settles session state after the underlying connection
// drops: a waiting login cancels its transfer; a live session accumulates
// play time and lets the coordinator settle any pending handshake before
// unbinding.
func (h *ConnectionHandler) handleDisconnect() {
	h.mu.Lock()
	state := h.state
	authed := h.authed
	username := h.username
	loginAt := h.loginAt
	h.mu.Unlock()

	switch {
	case state == stateTransferWait:
		h.deps.Transfers.Cancel(username)
	case authed:
		h.deps.Store.AddPlayTime(username, time.Since(loginAt))
		h.deps.Transfers.HandleBoundDisconnect(username)
	}
}

func (h *ConnectionHandler) processLine(line string) {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	cmd, arg := parseCommand(line)

	switch state {
	case stateLogin:
		h.processLogin(cmd, arg)
	case statePlaying:
		h.processPlaying(cmd, arg)
	case stateTransferAsk:
		h.processTransferAsk(cmd)
	case stateTransferWait:
		if cmd == "quit" {
			h.mu.Lock()
			username := h.username
			h.mu.Unlock()
			h.deps.Transfers.Cancel(username)
			h.send("Goodbye!")
			h.quitting = true
			return
		}
		h.send("Still waiting for your other connection to decide...")
	}
}

func (h *ConnectionHandler) processLogin(cmd, arg string) {
	switch cmd {
	case "connect":
		h.handleConnect(arg)
	case "create":
		h.handleCreate(arg)
	case "quit":
		h.send("Goodbye!")
		h.quitting = true
	default:
		if cmd != "" {
			h.send("Use: connect <username> <password>  or  create <username> <password>")
		}
	}
}

func (h *ConnectionHandler) processPlaying(cmd, arg string) {
	switch cmd {
	case "say":
		if arg == "" {
			h.send("Say what?")
			return
		}
		h.send(fmt.Sprintf("You say, %q", arg))
	case "score":
		h.handleScore()
	case "quit":
		h.handleQuit()
	default:
		if cmd != "" {
			h.send("Unknown command: " + cmd)
		}
	}
}

func (h *ConnectionHandler) processTransferAsk(cmd string) {
	h.mu.Lock()
	username := h.username
	h.mu.Unlock()

	switch cmd {
	case "yes", "y":
		h.send("Releasing this session...")
		h.deps.Transfers.Resolve(username, true)
	case "no", "n":
		h.deps.Transfers.Resolve(username, false)
	default:
		h.send("Another connection wants this session. Answer yes or no.")
	}
}

func (h *ConnectionHandler) processControl(msg session.ControlMessage) {
	switch msg.Kind {
	case session.ControlTransferRequest:
		h.mu.Lock()
		h.prevState = h.state
		h.state = stateTransferAsk
		h.mu.Unlock()
		h.send("Another connection is logging in as " + msg.Username + ".")
		h.send("Type 'yes' to hand over this session, or 'no' to keep it.")

	case session.ControlTransferWait:
		h.mu.Lock()
		h.state = stateTransferWait
		// Not attached yet, but the handshake must be cancellable by
		// username if this connection drops before the decision.
		h.username = msg.Username
		h.mu.Unlock()
		h.send("That identity is already connected. Waiting for the other connection to decide...")

	case session.ControlTransferApproved:
		h.mu.Lock()
		h.state = statePlaying
		h.loginAt = time.Now()
		name := h.username
		h.mu.Unlock()
		h.send("Session transferred. Welcome back, " + name + "!")

	case session.ControlTransferDenied:
		h.mu.Lock()
		h.state = stateLogin
		h.rec = nil
		h.authed = false
		h.mu.Unlock()
		h.send("The other connection kept the session.")
		h.send("Use: connect <username> <password>")

	case session.ControlTransferResume:
		h.mu.Lock()
		h.state = h.prevState
		h.mu.Unlock()
		h.send("The other login has been turned away.")

	default:
		slog.Warn("unknown control message",
			"conn_id", h.connID.String(),
			"kind", msg.Kind.String(),
		)
	}
}

func (h *ConnectionHandler) handleConnect(arg string) {
	parts := strings.SplitN(arg, " ", 2)
	if len(parts) != 2 {
		h.send("Usage: connect <username> <password>")
		return
	}
	username, password := parts[0], parts[1]

	if !h.deps.Auth.Authenticate(username, password) {
		h.send("Invalid username or password.")
		return
	}

	key := player.NormalizeUsername(username)
	if h.deps.Registry.Active(key) {
		if !h.deps.Transfers.RequestTransfer(key, h) {
			h.send("That identity is busy with another login attempt. Try again shortly.")
		}
		// Outcome arrives as a control message.
		return
	}

	h.bindSession(key)
}

func (h *ConnectionHandler) handleCreate(arg string) {
	parts := strings.SplitN(arg, " ", 2)
	if len(parts) != 2 {
		h.send("Usage: create <username> <password>")
		return
	}
	username, password := parts[0], parts[1]

	if _, err := h.deps.Store.Create(username, password); err != nil {
		h.send("Could not create that character: " + err.Error())
		return
	}
	h.send("Character created.")
	h.bindSession(player.NormalizeUsername(username))
}

// bindSession attaches the record and registers the session for a login
// that needed no transfer handshake.
func (h *ConnectionHandler) bindSession(username string) {
	rec, ok := h.deps.Store.Get(username)
	if !ok {
		slog.Error("authenticated player has no record", "username", username)
		h.send("Something went wrong. Try again.")
		return
	}

	h.Attach(rec)
	h.mu.Lock()
	h.state = statePlaying
	h.loginAt = time.Now()
	h.mu.Unlock()

	h.deps.Registry.Register(username, h)
	now := time.Now()
	h.deps.Store.Update(username, player.Patch{LastLogin: &now})

	h.send("Welcome back, " + username + "!")
}

func (h *ConnectionHandler) handleScore() {
	h.mu.Lock()
	rec := h.rec
	h.mu.Unlock()
	if rec == nil {
		return
	}

	h.send(fmt.Sprintf("%s  level %d  (%d xp)", rec.Username, rec.Stats.Level, rec.Stats.Experience))
	h.send(fmt.Sprintf("Health %d/%d  Mana %d/%d",
		rec.Stats.Health, rec.Stats.MaxHealth, rec.Stats.Mana, rec.Stats.MaxMana))
	h.send(fmt.Sprintf("Gold %d  Silver %d  Copper %d",
		rec.Currency.Gold, rec.Currency.Silver, rec.Currency.Copper))
}

func (h *ConnectionHandler) handleQuit() {
	h.mu.Lock()
	username := h.username
	loginAt := h.loginAt
	h.mu.Unlock()

	h.send("Goodbye!")
	h.deps.Store.AddPlayTime(username, time.Since(loginAt))
	// A transfer request may have landed just before the quit; the
	// coordinator settles it for the waiter instead of dropping it.
	h.deps.Transfers.HandleBoundDisconnect(username)
	h.quitting = true
}

func (h *ConnectionHandler) send(msg string) {
	if err := h.Write(msg); err != nil {
		slog.Debug("failed to send message to client",
			"conn_id", h.connID.String(),
			"error", err,
		)
	}
}

// parseCommand splits a line into its command word and argument remainder.
func parseCommand(line string) (cmd, arg string) {
	parts := strings.SplitN(line, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

var _ session.Conn = (*ConnectionHandler)(nil)
