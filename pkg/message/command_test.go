package message

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Command
	}{
		{name: "bang with argument", body: "!ping hello world", want: Command{Prefix: "!", Name: "ping", Argument: "hello world"}},
		{name: "slash without argument", body: "/Menu", want: Command{Prefix: "/", Name: "menu"}},
		{name: "dot with padded argument", body: ".sheng   on  ", want: Command{Prefix: ".", Name: "sheng", Argument: "on"}},
		{name: "backslash", body: `\help me`, want: Command{Prefix: `\`, Name: "help", Argument: "me"}},
		{name: "hash", body: "#tag", want: Command{Prefix: "#", Name: "tag"}},
		{name: "bare prefix", body: "!", want: Command{Prefix: "!", Name: ""}},
		{name: "prefix then space", body: "! ping", want: Command{Prefix: "!", Name: "", Argument: "ping"}},
		{name: "empty body", body: "", want: Command{Prefix: DefaultPrefix}},
		{name: "plain text", body: "hello /ping", want: Command{Prefix: DefaultPrefix}},
		{name: "leading space", body: " !ping", want: Command{Prefix: DefaultPrefix}},
		{name: "unlisted prefix", body: "$ping", want: Command{Prefix: DefaultPrefix}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommand(tt.body)
			if got != tt.want {
				t.Fatalf("ParseCommand(%q) = %+v, want %+v", tt.body, got, tt.want)
			}
		})
	}
}

func TestParseCommandNoPrefixNeverYieldsCommand(t *testing.T) {
	bodies := []string{"antileft on", "ping", "  /ping", "hello world", "https://t.me/+abc", "😀 !ping"}
	for _, body := range bodies {
		if got := ParseCommand(body); got.Invoked() {
			t.Fatalf("ParseCommand(%q).Name = %q, want empty", body, got.Name)
		}
	}
}

func TestCommandIsIgnoresEmptyName(t *testing.T) {
	cmd := ParseCommand("hello")
	if cmd.Is("") {
		t.Fatal("empty command must not match empty name")
	}

	cmd = ParseCommand("!PING")
	if !cmd.Is("ping") || !cmd.Is(" Ping ") {
		t.Fatal("expected case-insensitive match for ping")
	}
	if cmd.Is("pong") {
		t.Fatal("unexpected match for pong")
	}
}

func TestCommandArgs(t *testing.T) {
	cmd := ParseCommand("!kick  @a   @b")
	args := cmd.Args()
	if len(args) != 2 || args[0] != "@a" || args[1] != "@b" {
		t.Fatalf("Args = %v, want [@a @b]", args)
	}
}

func TestMessageActionable(t *testing.T) {
	var nilMsg *Message
	if nilMsg.Actionable() {
		t.Fatal("nil message must not be actionable")
	}
	if (&Message{Body: "hi"}).Actionable() {
		t.Fatal("message without payload must not be actionable")
	}
	if !(&Message{Payload: struct{}{}}).Actionable() {
		t.Fatal("message with payload must be actionable")
	}
}
