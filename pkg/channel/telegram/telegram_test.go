package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"warden/pkg/bus"
	"warden/pkg/config"
	"warden/pkg/transport"

	"github.com/mymmrac/telego"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(config.TelegramConfig{Token: "  "}, false, nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestNormalizeGroupMessage(t *testing.T) {
	adapter := &Adapter{}
	update := telego.Update{Message: &telego.Message{
		MessageID: 17,
		Date:      1700000000,
		Text:      "  !ping hello  ",
		From:      &telego.User{ID: 55, FirstName: "Amina", LastName: "Otieno"},
		Chat:      telego.Chat{ID: -1001, Type: telego.ChatTypeSupergroup},
	}}

	msg, err := adapter.Normalize(context.Background(), transport.Event{Type: transport.EventNotify, Raw: update})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if msg.ID != "17" || msg.Body != "!ping hello" || msg.Sender != "55" || msg.From != "-1001" {
		t.Fatalf("Normalize() = %+v", msg)
	}
	if !msg.IsGroup || msg.SenderName != "Amina Otieno" || !msg.Actionable() {
		t.Fatalf("Normalize() = %+v", msg)
	}
}

func TestNormalizeWithoutTextHasNoPayload(t *testing.T) {
	adapter := &Adapter{}
	tests := []telego.Update{
		{},
		{Message: &telego.Message{MessageID: 1, From: &telego.User{ID: 2}, Chat: telego.Chat{ID: 2, Type: telego.ChatTypePrivate}}},
		{Message: &telego.Message{MessageID: 1, Text: "hi", Chat: telego.Chat{ID: 2, Type: telego.ChatTypePrivate}}},
	}
	for idx, update := range tests {
		msg, err := adapter.Normalize(context.Background(), transport.Event{Type: transport.EventNotify, Raw: update})
		if err != nil {
			t.Fatalf("case %d: Normalize() error = %v", idx, err)
		}
		if msg.Actionable() {
			t.Fatalf("case %d: message should not be actionable", idx)
		}
	}
}

func TestNormalizeRejectsForeignPayload(t *testing.T) {
	_, err := (&Adapter{}).Normalize(context.Background(), transport.Event{Type: transport.EventNotify, Raw: "nope"})
	if err == nil {
		t.Fatal("expected normalization error")
	}
}

func TestMembershipUpdate(t *testing.T) {
	joined, ok := membershipUpdate(&telego.Message{
		Chat:           telego.Chat{ID: -5},
		From:           &telego.User{ID: 9},
		NewChatMembers: []telego.User{{ID: 10, Username: "kamau"}, {ID: 11, FirstName: "Njeri"}},
	})
	if !ok || joined.Action != transport.ActionAdd || len(joined.Participants) != 2 {
		t.Fatalf("joined = %+v", joined)
	}
	if joined.Names[0] != "@kamau" || joined.Names[1] != "Njeri" {
		t.Fatalf("names = %v", joined.Names)
	}

	left, ok := membershipUpdate(&telego.Message{
		Chat:           telego.Chat{ID: -5},
		From:           &telego.User{ID: 10},
		LeftChatMember: &telego.User{ID: 10},
	})
	if !ok || left.Action != transport.ActionRemove || left.Actor != "10" || left.Participants[0] != "10" {
		t.Fatalf("left = %+v", left)
	}

	if _, ok := membershipUpdate(&telego.Message{Text: "hi"}); ok {
		t.Fatal("plain message should not be a membership update")
	}
}

func TestMemberRole(t *testing.T) {
	if memberRole(telego.MemberStatusCreator) != transport.RoleSuperAdmin {
		t.Fatal("creator should map to superadmin")
	}
	if memberRole(telego.MemberStatusAdministrator) != transport.RoleAdmin {
		t.Fatal("administrator should map to admin")
	}
	if memberRole("member") != transport.RoleMember {
		t.Fatal("member should map to member")
	}
}

func TestRouteSplitsMessagesAndMembershipEvents(t *testing.T) {
	adapter := &Adapter{listeners: bus.NewMessageBus(), log: slog.Default()}
	var updates []any
	adapter.Subscribe(transport.EventGroupParticipantsUpdate, func(_ context.Context, payload any) {
		updates = append(updates, payload)
	})
	var events []string
	handler := func(_ context.Context, event transport.Event) {
		events = append(events, event.Type)
	}

	ctx := context.Background()
	adapter.route(ctx, telego.Update{Message: &telego.Message{Text: "hi", From: &telego.User{ID: 1}, Chat: telego.Chat{ID: 1}}}, handler)
	adapter.route(ctx, telego.Update{EditedMessage: &telego.Message{Text: "hi"}}, handler)
	adapter.route(ctx, telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: -5}, LeftChatMember: &telego.User{ID: 3}}}, handler)

	if strings.Join(events, ",") != "notify,edit" {
		t.Fatalf("events = %v", events)
	}
	if len(updates) != 1 {
		t.Fatalf("membership updates = %d, want 1", len(updates))
	}
}

func TestDecodeIdentity(t *testing.T) {
	adapter := &Adapter{}
	if got := adapter.DecodeIdentity(" +254700:2 "); got != "254700" {
		t.Fatalf("DecodeIdentity = %q", got)
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}

func TestOwnIdentityRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"warden"}}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "123456:" + strings.Repeat("A", 35)}
	adapter, err := NewAdapter(cfg, false, slog.Default(), telego.WithAPIServer(server.URL))
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	ctx := context.Background()
	if _, err := adapter.OwnIdentity(ctx); err == nil {
		t.Fatal("expected first lookup to fail")
	}

	self, err := adapter.OwnIdentity(ctx)
	if err != nil {
		t.Fatalf("OwnIdentity() after recovery error = %v", err)
	}
	if self != "42" {
		t.Fatalf("OwnIdentity() = %q, want 42", self)
	}

	if _, err := adapter.OwnIdentity(ctx); err != nil {
		t.Fatalf("cached OwnIdentity() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("getMe calls = %d, want 2", got)
	}
}

func TestNormalizeMarksOwnMessages(t *testing.T) {
	adapter := &Adapter{self: "55"}

	own, err := adapter.Normalize(context.Background(), transport.Event{Type: transport.EventNotify, Raw: telego.Update{
		Message: &telego.Message{Text: "hi", From: &telego.User{ID: 55}, Chat: telego.Chat{ID: -5, Type: "group"}},
	}})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !own.FromSelf {
		t.Fatal("message from the bot account should be marked FromSelf")
	}

	other, err := adapter.Normalize(context.Background(), transport.Event{Type: transport.EventNotify, Raw: telego.Update{
		Message: &telego.Message{Text: "hi", From: &telego.User{ID: 7}, Chat: telego.Chat{ID: -5, Type: "group"}},
	}})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if other.FromSelf {
		t.Fatal("message from another user must not be marked FromSelf")
	}
}
