// Package plugin loads user-supplied message handlers from a directory and
// runs them, one supervised invocation at a time, for every dispatched message.
package plugin

import (
	"context"
	"path/filepath"
	"strings"

	"warden/pkg/access"
	"warden/pkg/message"
	"warden/pkg/transport"
)

// Plugin handles one message. Implementations must honor ctx cancellation.
type Plugin interface {
	Name() string
	Handle(ctx context.Context, msg *message.Message, inv Invocation) error
}

// Invocation carries the per-message context handed to every plugin.
type Invocation struct {
	Transport transport.Handle
	Command   message.Command
	Access    access.Context
}

// Loader turns one file of a given extension into a Plugin.
type Loader interface {
	Extension() string
	Load(path string) (Plugin, error)
}

// NameFromPath derives the plugin name from its file name.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Func adapts a plain function into a compiled-in Plugin.
type Func struct {
	ID string
	Fn func(ctx context.Context, msg *message.Message, inv Invocation) error
}

func (f Func) Name() string {
	return f.ID
}

func (f Func) Handle(ctx context.Context, msg *message.Message, inv Invocation) error {
	return f.Fn(ctx, msg, inv)
}
