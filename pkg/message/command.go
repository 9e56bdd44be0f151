package message

import "strings"

// DefaultPrefix is reported when the body does not start with a command prefix.
const DefaultPrefix = "/"

// prefixes is the anchored command prefix set.
const prefixes = `\/!#.`

// Command is the parsed command view of a message body.
type Command struct {
	Prefix   string
	Name     string
	Argument string
}

// ParseCommand extracts prefix, lower-cased command name and trimmed argument.
//
// A body without a leading prefix yields the default prefix and an empty name.
func ParseCommand(body string) Command {
	if body == "" || !strings.ContainsRune(prefixes, rune(body[0])) {
		return Command{Prefix: DefaultPrefix}
	}

	prefix := body[:1]
	rest := body[len(prefix):]
	name := rest
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		name = rest[:idx]
	}

	return Command{
		Prefix:   prefix,
		Name:     strings.ToLower(name),
		Argument: strings.TrimSpace(body[len(prefix)+len(name):]),
	}
}

// Invoked reports whether the body named any command at all.
func (c Command) Invoked() bool {
	return c.Name != ""
}

// Is reports whether the command matches name. The empty command never matches.
func (c Command) Is(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return c.Name != "" && c.Name == name
}

// Args splits the argument on whitespace.
func (c Command) Args() []string {
	return strings.Fields(c.Argument)
}
