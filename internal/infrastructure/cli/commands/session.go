package commands

import (
	"context"

	"github.com/doeshing/autopilot/internal/app"
)

// Session carries the persistent flags shared by every command.
type Session struct {
	ConfigPath string
	Verbose    bool
	Slot       int
}

// WithContainer builds the container once flags are parsed and hands it to fn.
func (s *Session) WithContainer(ctx context.Context, fn func(context.Context, *app.Container) error) error {
	container, err := app.BuildContainer(ctx, app.Options{ConfigPath: s.ConfigPath, Verbose: s.Verbose})
	if err != nil {
		return err
	}
	return fn(ctx, container)
}

// SlotIndex is the selected instance slot, at least 1.
func (s *Session) SlotIndex() int {
	if s.Slot < 1 {
		return 1
	}
	return s.Slot
}
