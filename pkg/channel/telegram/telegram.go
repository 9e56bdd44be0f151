package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"warden/pkg/bus"
	"warden/pkg/channel"
	"warden/pkg/config"
	"warden/pkg/message"
	"warden/pkg/transport"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// EventEdit marks edited messages. They are forwarded and filtered by dispatch.
const EventEdit = "edit"

// Adapter bridges Telegram updates into dispatch events and serves as the
// transport handle for the session.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	public    bool
	bot       *telego.Bot
	listeners *bus.MessageBus
	log       *slog.Logger

	selfMu sync.Mutex
	self   transport.Identity
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
// Extra bot options are applied after the adapter defaults.
func NewAdapter(cfg config.TelegramConfig, publicMode bool, log *slog.Logger, options ...telego.BotOption) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token, append([]telego.BotOption{telego.WithDiscardLogger()}, options...)...)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		public:    publicMode,
		bot:       bot,
		listeners: bus.NewMessageBus(),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and hands each update to handler.
// Membership service messages are emitted to group-participants.update
// subscribers instead.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	defer a.listeners.Close()

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}
			a.route(ctx, update, handler)
		}
	}
}

func (a *Adapter) route(ctx context.Context, update telego.Update, handler channel.Handler) {
	event := transport.Event{Channel: channelName, Raw: update, ReceivedAt: time.Now().UTC()}

	switch {
	case update.Message != nil:
		msg := update.Message
		if groupUpdate, ok := membershipUpdate(msg); ok {
			a.log.Info("Group membership changed", "chat_id", groupUpdate.Chat, "action", groupUpdate.Action, "participants", len(groupUpdate.Participants))
			a.listeners.Emit(ctx, transport.EventGroupParticipantsUpdate, groupUpdate)
			return
		}
		if msg.From != nil && !a.senderAllowed(strconv.FormatInt(msg.From.ID, 10)) {
			a.log.Debug("Ignoring message from unauthorized sender", "sender_id", msg.From.ID)
			return
		}
		event.Type = transport.EventNotify
		a.log.Info("Received message", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "content", previewText(messageText(msg)))
	case update.EditedMessage != nil:
		event.Type = EventEdit
	default:
		event.Type = "update"
	}

	handler(ctx, event)
}

// Normalize converts a telego.Update carried by a notify event into a message.
// Updates without a usable text message yield a message with no payload.
func (a *Adapter) Normalize(ctx context.Context, event transport.Event) (*message.Message, error) {
	update, ok := event.Raw.(telego.Update)
	if !ok {
		return nil, &transport.NormalizationError{EventType: event.Type, Err: fmt.Errorf("unexpected raw event %T", event.Raw)}
	}

	msg := normalizeUpdate(update)
	if msg.Sender != "" {
		// Lookup failures surface again during access evaluation.
		if self, err := a.OwnIdentity(ctx); err == nil {
			msg.FromSelf = msg.Sender == self
		}
	}
	return msg, nil
}

func normalizeUpdate(update telego.Update) *message.Message {
	msg := update.Message
	if msg == nil {
		return &message.Message{}
	}

	out := &message.Message{
		ID:        strconv.Itoa(msg.MessageID),
		Body:      strings.TrimSpace(messageText(msg)),
		From:      chatIdentity(msg.Chat.ID),
		IsGroup:   msg.Chat.Type == telego.ChatTypeGroup || msg.Chat.Type == telego.ChatTypeSupergroup,
		Timestamp: time.Unix(msg.Date, 0).UTC(),
	}
	if msg.From != nil {
		out.Sender = chatIdentity(msg.From.ID)
		out.SenderName = displayName(*msg.From)
	}
	if out.Body != "" && msg.From != nil {
		out.Payload = msg
	}
	return out
}

func membershipUpdate(msg *telego.Message) (transport.GroupUpdate, bool) {
	update := transport.GroupUpdate{Chat: chatIdentity(msg.Chat.ID)}
	switch {
	case len(msg.NewChatMembers) > 0:
		update.Action = transport.ActionAdd
		for _, user := range msg.NewChatMembers {
			update.Participants = append(update.Participants, chatIdentity(user.ID))
			update.Names = append(update.Names, displayName(user))
		}
	case msg.LeftChatMember != nil:
		update.Action = transport.ActionRemove
		update.Participants = []transport.Identity{chatIdentity(msg.LeftChatMember.ID)}
		update.Names = []string{displayName(*msg.LeftChatMember)}
	default:
		return transport.GroupUpdate{}, false
	}
	if msg.From != nil {
		update.Actor = chatIdentity(msg.From.ID)
	}
	return update, true
}

// OwnIdentity returns the bot's own user ID. Only a successful lookup is
// cached; failures are retried on the next call.
func (a *Adapter) OwnIdentity(ctx context.Context) (transport.Identity, error) {
	a.selfMu.Lock()
	defer a.selfMu.Unlock()

	if a.self != "" {
		return a.self, nil
	}
	if a.bot == nil {
		return "", errors.New("telegram bot is not initialized")
	}

	me, err := a.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot identity: %w", err)
	}
	a.self = chatIdentity(me.ID)
	return a.self, nil
}

// GroupParticipants lists the chat administrators. Telegram does not expose
// full member lists, and regular members carry no privileges here.
func (a *Adapter) GroupParticipants(ctx context.Context, group transport.Identity) ([]transport.Participant, error) {
	chatID, err := parseID(group)
	if err != nil {
		return nil, &transport.MetadataError{Group: group, Err: err}
	}

	members, err := a.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return nil, &transport.MetadataError{Group: group, Err: err}
	}

	participants := make([]transport.Participant, 0, len(members))
	for _, member := range members {
		user := member.MemberUser()
		participants = append(participants, transport.Participant{
			ID:   chatIdentity(user.ID),
			Role: memberRole(member.MemberStatus()),
		})
	}
	return participants, nil
}

func memberRole(status string) transport.Role {
	switch status {
	case telego.MemberStatusCreator:
		return transport.RoleSuperAdmin
	case telego.MemberStatusAdministrator:
		return transport.RoleAdmin
	default:
		return transport.RoleMember
	}
}

// DecodeIdentity normalizes configured identities such as "+12345" or "12345:1".
func (a *Adapter) DecodeIdentity(raw string) transport.Identity {
	return transport.DecodeDeviceSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "+"))
}

// Subscribe registers listener for adapter-emitted events.
func (a *Adapter) Subscribe(event string, listener transport.Listener) func() {
	return a.listeners.Subscribe(event, bus.Listener(listener))
}

func (a *Adapter) PublicMode() bool {
	return a.public
}

func (a *Adapter) SendText(ctx context.Context, chat transport.Identity, text string, replyTo string) error {
	chatID, err := parseID(chat)
	if err != nil {
		return err
	}
	params := tu.Message(tu.ID(chatID), text)
	if replyTo != "" {
		if messageID, err := strconv.Atoi(replyTo); err == nil {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true}
		}
	}

	a.log.Info("Sending message", "chat_id", chat, "content", previewText(text))
	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, chat transport.Identity, messageID string) error {
	chatID, err := parseID(chat)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	if err := a.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: id}); err != nil {
		return fmt.Errorf("delete telegram message: %w", err)
	}
	return nil
}

// RemoveParticipant kicks user: a ban immediately lifted so they may rejoin later.
func (a *Adapter) RemoveParticipant(ctx context.Context, chat transport.Identity, user transport.Identity) error {
	chatID, err := parseID(chat)
	if err != nil {
		return err
	}
	userID, err := parseID(user)
	if err != nil {
		return err
	}
	if err := a.bot.BanChatMember(ctx, &telego.BanChatMemberParams{ChatID: tu.ID(chatID), UserID: userID}); err != nil {
		return fmt.Errorf("ban telegram member: %w", err)
	}
	if err := a.bot.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{ChatID: tu.ID(chatID), UserID: userID, OnlyIfBanned: true}); err != nil {
		return fmt.Errorf("unban telegram member: %w", err)
	}
	return nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func chatIdentity(id int64) transport.Identity {
	return transport.Identity(strconv.FormatInt(id, 10))
}

func parseID(id transport.Identity) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram id %q: %w", id, err)
	}
	return value, nil
}

func messageText(msg *telego.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func displayName(user telego.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return strconv.FormatInt(user.ID, 10)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
