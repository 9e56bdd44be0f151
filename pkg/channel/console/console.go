// Package console is a local terminal channel: typed lines are dispatched as
// if they arrived from a chat, and every outbound action is rendered inline.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"warden/pkg/bus"
	"warden/pkg/channel"
	"warden/pkg/message"
	"warden/pkg/transport"

	tea "github.com/charmbracelet/bubbletea"
)

const channelName = "console"

const (
	// BotIdentity is the bot's own identity on the console.
	BotIdentity transport.Identity = "console-bot"
	// ChatIdentity is the single console chat.
	ChatIdentity transport.Identity = "console"
)

// Options configures the simulated session.
type Options struct {
	// Sender is the identity typed lines are attributed to.
	Sender     string
	SenderName string
	PublicMode bool
	// Group starts the session as a group chat.
	Group bool
	// SenderAdmin lists the sender among the group admins.
	SenderAdmin bool
}

// Line is the raw payload of one typed console line.
type Line struct {
	ID   string
	Text string
}

// Entry is one rendered transcript item.
type Entry struct {
	Role string
	Text string
}

// Adapter simulates a chat session on the terminal.
type Adapter struct {
	opts      Options
	listeners *bus.MessageBus
	log       *slog.Logger
	nextID    atomic.Int64

	mu          sync.Mutex
	group       bool
	senderAdmin bool
	sink        func(Entry)
}

func NewAdapter(opts Options, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.Sender) == "" {
		opts.Sender = "console-user"
	}
	if strings.TrimSpace(opts.SenderName) == "" {
		opts.SenderName = "You"
	}
	return &Adapter{
		opts:        opts,
		listeners:   bus.NewMessageBus(),
		log:         log.With("component", "channel.console"),
		group:       opts.Group,
		senderAdmin: opts.SenderAdmin,
	}
}

func (a *Adapter) Name() string {
	return channelName
}

// Run renders the interactive console until the user quits or ctx ends.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	defer a.listeners.Close()

	m := newModel(ctx, a, handler)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	a.setSink(func(entry Entry) { program.Send(entryMsg(entry)) })
	defer a.setSink(nil)

	_, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// Submit turns one typed line into a dispatch event, or applies a console
// directive (":group", ":admin", ":join", ":leave").
func (a *Adapter) Submit(ctx context.Context, text string, handler channel.Handler) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if a.directive(ctx, text) {
		return
	}

	a.log.Debug("Console line submitted", "content", text)
	handler(ctx, transport.Event{
		Type:       transport.EventNotify,
		Channel:    channelName,
		Raw:        Line{ID: strconv.FormatInt(a.nextID.Add(1), 10), Text: text},
		ReceivedAt: time.Now().UTC(),
	})
}

func (a *Adapter) directive(ctx context.Context, text string) bool {
	text = strings.ToLower(text)
	switch text {
	case ":group":
		a.mu.Lock()
		a.group = !a.group
		group := a.group
		a.mu.Unlock()
		a.emit(Entry{Role: "system", Text: "group mode " + onOff(group)})
	case ":admin":
		a.mu.Lock()
		a.senderAdmin = !a.senderAdmin
		admin := a.senderAdmin
		a.mu.Unlock()
		a.emit(Entry{Role: "system", Text: "sender admin " + onOff(admin)})
	case ":join", ":leave":
		action := transport.ActionAdd
		if text == ":leave" {
			action = transport.ActionRemove
		}
		a.emit(Entry{Role: "system", Text: a.opts.SenderName + " " + action})
		a.listeners.Emit(ctx, transport.EventGroupParticipantsUpdate, transport.GroupUpdate{
			Chat:         ChatIdentity,
			Participants: []transport.Identity{a.sender()},
			Names:        []string{a.opts.SenderName},
			Action:       action,
		})
	default:
		return false
	}
	return true
}

// Normalize converts a console Line event into a message.
func (a *Adapter) Normalize(_ context.Context, event transport.Event) (*message.Message, error) {
	line, ok := event.Raw.(Line)
	if !ok {
		return nil, &transport.NormalizationError{EventType: event.Type, Err: fmt.Errorf("unexpected raw event %T", event.Raw)}
	}

	a.mu.Lock()
	group := a.group
	a.mu.Unlock()

	sender := a.sender()
	msg := &message.Message{
		ID:         line.ID,
		Body:       line.Text,
		Sender:     sender,
		FromSelf:   sender == BotIdentity,
		SenderName: a.opts.SenderName,
		From:       ChatIdentity,
		IsGroup:    group,
		Timestamp:  time.Now().UTC(),
	}
	if line.Text != "" {
		msg.Payload = line
	}
	return msg, nil
}

func (a *Adapter) OwnIdentity(context.Context) (transport.Identity, error) {
	return BotIdentity, nil
}

// GroupParticipants lists the bot as admin and the sender per the admin toggle.
func (a *Adapter) GroupParticipants(_ context.Context, group transport.Identity) ([]transport.Participant, error) {
	if group != ChatIdentity {
		return nil, &transport.MetadataError{Group: group, Err: errors.New("unknown console chat")}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	role := transport.RoleMember
	if a.senderAdmin {
		role = transport.RoleAdmin
	}
	return []transport.Participant{
		{ID: BotIdentity, Role: transport.RoleSuperAdmin},
		{ID: a.sender(), Role: role},
	}, nil
}

func (a *Adapter) DecodeIdentity(raw string) transport.Identity {
	return transport.DecodeDeviceSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "+"))
}

func (a *Adapter) Subscribe(event string, listener transport.Listener) func() {
	return a.listeners.Subscribe(event, bus.Listener(listener))
}

func (a *Adapter) PublicMode() bool {
	return a.opts.PublicMode
}

func (a *Adapter) SendText(_ context.Context, chat transport.Identity, text string, replyTo string) error {
	prefix := ""
	if chat != ChatIdentity {
		prefix = "→ " + string(chat) + ": "
	} else if replyTo != "" {
		prefix = "↩ #" + replyTo + " "
	}
	a.emit(Entry{Role: "bot", Text: prefix + text})
	return nil
}

func (a *Adapter) DeleteMessage(_ context.Context, _ transport.Identity, messageID string) error {
	a.emit(Entry{Role: "action", Text: "deleted message #" + messageID})
	return nil
}

func (a *Adapter) RemoveParticipant(_ context.Context, _ transport.Identity, user transport.Identity) error {
	a.emit(Entry{Role: "action", Text: "removed " + string(user) + " from the group"})
	return nil
}

func (a *Adapter) sender() transport.Identity {
	return a.DecodeIdentity(a.opts.Sender)
}

func (a *Adapter) setSink(sink func(Entry)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

func (a *Adapter) emit(entry Entry) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink != nil {
		sink(entry)
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
