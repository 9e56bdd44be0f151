package console

import (
	"context"
	"strings"
	"testing"

	"warden/pkg/transport"

	tea "github.com/charmbracelet/bubbletea"
)

func collect(a *Adapter) *[]Entry {
	var entries []Entry
	a.setSink(func(entry Entry) { entries = append(entries, entry) })
	return &entries
}

func TestSubmitDispatchesNotifyEvents(t *testing.T) {
	adapter := NewAdapter(Options{Sender: "+254700:1", Group: true}, nil)
	var events []transport.Event
	handler := func(_ context.Context, event transport.Event) { events = append(events, event) }

	adapter.Submit(context.Background(), "  !ping  ", handler)
	adapter.Submit(context.Background(), "   ", handler)

	if len(events) != 1 || events[0].Type != transport.EventNotify || events[0].Channel != "console" {
		t.Fatalf("events = %+v", events)
	}

	msg, err := adapter.Normalize(context.Background(), events[0])
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if msg.Body != "!ping" || msg.Sender != "254700" || msg.From != ChatIdentity || !msg.IsGroup || !msg.Actionable() {
		t.Fatalf("Normalize() = %+v", msg)
	}
}

func TestDirectivesToggleSessionState(t *testing.T) {
	adapter := NewAdapter(Options{}, nil)
	entries := collect(adapter)
	called := false
	handler := func(context.Context, transport.Event) { called = true }

	adapter.Submit(context.Background(), ":group", handler)
	adapter.Submit(context.Background(), ":admin", handler)
	if called {
		t.Fatal("directives must not be dispatched")
	}

	participants, err := adapter.GroupParticipants(context.Background(), ChatIdentity)
	if err != nil {
		t.Fatalf("GroupParticipants() error = %v", err)
	}
	if participants[1].Role != transport.RoleAdmin {
		t.Fatalf("participants = %+v, want sender admin", participants)
	}
	if len(*entries) != 2 || !strings.Contains((*entries)[0].Text, "group mode on") {
		t.Fatalf("entries = %+v", *entries)
	}
}

func TestLeaveEmitsGroupUpdate(t *testing.T) {
	adapter := NewAdapter(Options{Sender: "42", SenderName: "Baraka"}, nil)
	var updates []transport.GroupUpdate
	adapter.Subscribe(transport.EventGroupParticipantsUpdate, func(_ context.Context, payload any) {
		updates = append(updates, payload.(transport.GroupUpdate))
	})

	adapter.Submit(context.Background(), ":leave", func(context.Context, transport.Event) {})
	adapter.Submit(context.Background(), ":LEAVE", func(context.Context, transport.Event) {})
	adapter.Submit(context.Background(), ":Join", func(context.Context, transport.Event) {})

	if len(updates) != 3 {
		t.Fatalf("updates = %+v, want 3", updates)
	}
	for idx, want := range []string{transport.ActionRemove, transport.ActionRemove, transport.ActionAdd} {
		if updates[idx].Action != want || updates[idx].Participants[0] != "42" {
			t.Fatalf("update %d = %+v, want action %s", idx, updates[idx], want)
		}
	}
}

func TestNormalizeMarksBotSender(t *testing.T) {
	event := transport.Event{Type: transport.EventNotify, Raw: Line{ID: "1", Text: "hi"}}

	own, err := NewAdapter(Options{Sender: string(BotIdentity)}, nil).Normalize(context.Background(), event)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !own.FromSelf {
		t.Fatal("line typed as the bot should be marked FromSelf")
	}

	other, err := NewAdapter(Options{Sender: "42"}, nil).Normalize(context.Background(), event)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if other.FromSelf {
		t.Fatal("line typed as a user must not be marked FromSelf")
	}
}

func TestOutboundActionsAreRendered(t *testing.T) {
	adapter := NewAdapter(Options{}, nil)
	entries := collect(adapter)
	ctx := context.Background()

	_ = adapter.SendText(ctx, ChatIdentity, "pong", "3")
	_ = adapter.SendText(ctx, "other", "hi", "")
	_ = adapter.DeleteMessage(ctx, ChatIdentity, "3")
	_ = adapter.RemoveParticipant(ctx, ChatIdentity, "7")

	got := *entries
	if len(got) != 4 {
		t.Fatalf("entries = %+v", got)
	}
	if got[0].Text != "↩ #3 pong" || got[1].Text != "→ other: hi" || got[2].Role != "action" || got[3].Role != "action" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestUnknownGroupMetadataFails(t *testing.T) {
	adapter := NewAdapter(Options{}, nil)
	if _, err := adapter.GroupParticipants(context.Background(), "elsewhere"); err == nil {
		t.Fatal("expected metadata error")
	}
}

func TestModelViewportKeysToggleFollowLog(t *testing.T) {
	m := newModel(context.Background(), NewAdapter(Options{}, nil), func(context.Context, transport.Event) {})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()

	if !m.handleViewportKey(tea.KeyMsg{Type: tea.KeyPgUp}) || m.followLog {
		t.Fatal("pgup should scroll and stop following")
	}
	if !m.handleViewportKey(tea.KeyMsg{Type: tea.KeyEnd}) || !m.followLog {
		t.Fatal("end should jump to bottom and follow")
	}
	if m.handleViewportKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")}) {
		t.Fatal("runes should not be handled by the viewport")
	}
}

func TestModelSubmitAppendsUserEntry(t *testing.T) {
	m := newModel(context.Background(), NewAdapter(Options{}, nil), func(context.Context, transport.Event) {})
	m.input.SetValue("hello")

	if cmd := m.submit(); cmd == nil {
		t.Fatal("submit() returned nil command")
	}
	if !m.isBusy || len(m.entries) != 1 || m.entries[0].Role != "user" || m.input.Value() != "" {
		t.Fatalf("model state after submit: busy=%v entries=%+v", m.isBusy, m.entries)
	}
	if cmd := m.submit(); cmd != nil {
		t.Fatal("submit while busy should be ignored")
	}
}
