package js

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"warden/pkg/access"
	"warden/pkg/message"
	"warden/pkg/plugin"
	"warden/pkg/transport/transporttest"
)

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func invocation(handle *transporttest.Handle, body string) (*message.Message, plugin.Invocation) {
	msg := &message.Message{ID: "9", Body: body, Sender: "55", SenderName: "Wanjiru", From: "-100", IsGroup: true, Payload: struct{}{}}
	return msg, plugin.Invocation{
		Transport: handle,
		Command:   message.ParseCommand(body),
		Access:    access.Context{IsSenderAdmin: true, IsBotAdmin: true},
	}
}

func load(t *testing.T, src string) *Plugin {
	t.Helper()
	p, err := Loader{}.Load(writeScript(t, "echo.js", src))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(func() { _ = p.(*Plugin).Close() })
	return p.(*Plugin)
}

func TestEntryPointForms(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "module.exports function", src: `module.exports = function (m, bot) { bot.reply("hi " + m.sender_name) }`},
		{name: "module.exports.handle", src: `module.exports.handle = (m, bot) => bot.reply("hi " + m.sender_name)`},
		{name: "exports.handle", src: `exports.handle = (m, bot) => bot.reply("hi " + m.sender_name)`},
		{name: "global handle", src: `function handle(m, bot) { bot.reply("hi " + m.sender_name) }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := load(t, tt.src)
			handle := transporttest.New("1")
			msg, inv := invocation(handle, "hello")
			if err := p.Handle(context.Background(), msg, inv); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			sent := handle.Sent()
			if len(sent) != 1 || sent[0].Text != "hi Wanjiru" || sent[0].ReplyTo != "9" {
				t.Fatalf("sent = %+v", sent)
			}
		})
	}
}

func TestMessageFieldsAndHostActions(t *testing.T) {
	p := load(t, `
module.exports = function (m, bot) {
  if (m.command !== "kick") return;
  bot.delete();
  bot.kick(m.args[0]);
  bot.send(m.from, m.prefix + m.command + " " + m.args.length + " " + m.is_group);
};
`)
	handle := transporttest.New("1")
	msg, inv := invocation(handle, "#kick 77 now")
	if err := p.Handle(context.Background(), msg, inv); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if got := handle.Deleted(); len(got) != 1 || got[0].MessageID != "9" {
		t.Fatalf("deleted = %+v", got)
	}
	if got := handle.Removed(); len(got) != 1 || got[0].User != "77" {
		t.Fatalf("removed = %+v", got)
	}
	if got := handle.Sent(); len(got) != 1 || got[0].Text != "#kick 2 true" {
		t.Fatalf("sent = %+v", got)
	}
}

func TestLoadRejectsScriptWithoutEntryPoint(t *testing.T) {
	_, err := Loader{}.Load(writeScript(t, "bare.js", `var x = 1;`))

	var loadErr *plugin.LoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, plugin.ErrNoEntryPoint) {
		t.Fatalf("Load() error = %v, want LoadError wrapping ErrNoEntryPoint", err)
	}
}

func TestLoadRejectsSyntaxError(t *testing.T) {
	_, err := Loader{}.Load(writeScript(t, "broken.js", `module.exports = function (`))

	var loadErr *plugin.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Load() error = %v, want *plugin.LoadError", err)
	}
}

func TestLoadInterruptsRunawayScript(t *testing.T) {
	_, err := Loader{LoadTimeout: 50 * time.Millisecond}.Load(writeScript(t, "spin.js", `for (;;) {}`))
	if err == nil {
		t.Fatal("Load() error = nil, want interruption")
	}
}

func TestHandleSurfacesThrowsAndRejections(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "throw", src: `module.exports = () => { throw new Error("nope") }`},
		{name: "rejected promise", src: `module.exports = async () => { throw new Error("nope") }`},
		{name: "host error", src: `module.exports = (m, bot) => bot.send("", "x")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := load(t, tt.src)
			msg, inv := invocation(transporttest.New("1"), "hi")
			if err := p.Handle(context.Background(), msg, inv); err == nil {
				t.Fatal("Handle() error = nil")
			}
		})
	}
}

func TestHandleInterruptedOnDeadline(t *testing.T) {
	p := load(t, `module.exports = () => { for (;;) {} }`)
	msg, inv := invocation(transporttest.New("1"), "hi")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Handle(ctx, msg, inv); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Handle() error = %v, want deadline exceeded", err)
	}
}

func TestClosedPluginRefusesInvocations(t *testing.T) {
	p := load(t, `module.exports = () => {}`)
	_ = p.Close()
	msg, inv := invocation(transporttest.New("1"), "hi")
	if err := p.Handle(context.Background(), msg, inv); !errors.Is(err, ErrClosed) {
		t.Fatalf("Handle() error = %v, want ErrClosed", err)
	}
}
