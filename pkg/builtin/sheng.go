package builtin

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"warden/pkg/transport"
)

const shengNamespace = "sheng"

// Responder produces a sheng reply for one chat message.
type Responder interface {
	Respond(ctx context.Context, chat transport.Identity, text string) (string, error)
}

// conversationResetter is implemented by responders that keep per-chat state.
type conversationResetter interface {
	Forget(chat transport.Identity)
}

// Sheng holds the per-chat sheng mode state shared by its command and chat steps.
type Sheng struct {
	settings  Settings
	responder Responder
	log       *slog.Logger
}

func NewSheng(settings Settings, responder Responder, log *slog.Logger) *Sheng {
	if log == nil {
		log = slog.Default()
	}
	if responder == nil {
		responder = Phrasebook{}
	}

	return &Sheng{
		settings:  settings,
		responder: responder,
		log:       log.With("component", "builtin.sheng"),
	}
}

// Enabled reports whether sheng mode is on for chat.
func (s *Sheng) Enabled(ctx context.Context, chat transport.Identity) (bool, error) {
	return s.settings.Bool(ctx, toggleKey(shengNamespace, chat))
}

// Command returns the step handling the sheng on/off command.
func (s *Sheng) Command() Behavior {
	return shengCommand{s}
}

// Chat returns the step producing free-form sheng replies.
func (s *Sheng) Chat() Behavior {
	return shengChat{s}
}

type shengCommand struct{ *Sheng }

func (shengCommand) Name() string {
	return "sheng.command"
}

func (c shengCommand) Run(ctx context.Context, in Input) error {
	if !in.Command.Is("sheng") {
		return nil
	}

	if in.Message.IsGroup && !in.Access.Moderator() {
		return reply(ctx, in, "Only group admins or the owner can change sheng mode.")
	}

	var enable bool
	switch strings.ToLower(in.Command.Argument) {
	case "on":
		enable = true
	case "off":
		enable = false
	default:
		enabled, err := c.Enabled(ctx, in.Message.From)
		if err != nil {
			return fmt.Errorf("read sheng setting: %w", err)
		}
		usage := fmt.Sprintf("Sheng mode is %s. Use %ssheng on or %ssheng off.", onOff(enabled), in.Command.Prefix, in.Command.Prefix)
		return reply(ctx, in, usage)
	}

	if err := c.settings.SetBool(ctx, toggleKey(shengNamespace, in.Message.From), enable); err != nil {
		return fmt.Errorf("persist sheng setting: %w", err)
	}
	c.log.Info("Sheng mode toggled", "chat_id", in.Message.From, "enabled", enable)
	if resetter, ok := c.responder.(conversationResetter); ok && !enable {
		resetter.Forget(in.Message.From)
	}

	if enable {
		return reply(ctx, in, "Sheng mode iko ON! Sasa tuongee kama mababi.")
	}
	return reply(ctx, in, "Sheng mode is now OFF.")
}

type shengChat struct{ *Sheng }

func (shengChat) Name() string {
	return "sheng.chat"
}

func (c shengChat) Run(ctx context.Context, in Input) error {
	msg := in.Message
	if msg.FromSelf || msg.Sender == in.Access.BotID || in.Command.Invoked() {
		return nil
	}

	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return nil
	}
	if _, toggle := TogglePhrase(msg.Body); toggle {
		return nil
	}

	enabled, err := c.Enabled(ctx, msg.From)
	if err != nil {
		return fmt.Errorf("read sheng setting: %w", err)
	}
	if !enabled {
		return nil
	}

	answer, err := c.responder.Respond(ctx, msg.From, text)
	if err != nil {
		return fmt.Errorf("sheng responder: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return errors.New("sheng responder returned empty reply")
	}

	return reply(ctx, in, answer)
}

// Phrasebook is an offline Responder that picks canned sheng lines.
type Phrasebook struct{}

var phrasebookGreetings = []string{"niaje", "sasa", "mambo", "hello", "hi", "vipi", "hey"}

var phrasebookLines = []string{
	"Poa sana msee, form ni gani leo?",
	"Aki wewe ni noma! Endelea tu.",
	"Hiyo ni story mob, niambie zaidi.",
	"Usijali bro, tutaweza tu.",
	"Ni sawa mzee, hakuna noma.",
	"Maze, hiyo imenibamba kabisa!",
}

func (Phrasebook) Respond(_ context.Context, _ transport.Identity, text string) (string, error) {
	lower := strings.ToLower(text)
	for _, greeting := range phrasebookGreetings {
		if strings.HasPrefix(lower, greeting) {
			return "Niaje msee! Form ni gani?", nil
		}
	}
	if strings.Contains(lower, "how are you") || strings.Contains(lower, "uko aje") {
		return "Niko fiti kabisa, wewe je?", nil
	}

	hash := fnv.New32a()
	_, _ = hash.Write([]byte(lower))
	return phrasebookLines[hash.Sum32()%uint32(len(phrasebookLines))], nil
}
