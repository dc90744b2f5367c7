package strategy

import (
	"context"

	"github.com/openmined/syftsync/internal/storage"
)

// Disabled is what a collect run holds until a strategy is loaded, and all it
// ever holds when sync is off. Reaching any of its methods is a programming
// error.
type Disabled struct{}

var _ Strategy = Disabled{}

func (Disabled) PreCollectHook(context.Context) error { panic("strategy: not implemented") }
func (Disabled) PreShouldCopyHook(context.Context)    { panic("strategy: not implemented") }

func (Disabled) ShouldCopyFile(context.Context, string, string, *storage.LocalSource) (bool, error) {
	panic("strategy: not implemented")
}

func (Disabled) PostCopyHook(context.Context, string, string, *storage.LocalSource) {
	panic("strategy: not implemented")
}

func (Disabled) OnSkipHook(context.Context, string, string, *storage.LocalSource) {
	panic("strategy: not implemented")
}

func (Disabled) IsDeleteNotFound(error) bool { panic("strategy: not implemented") }
