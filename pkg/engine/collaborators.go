package engine

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
)

// Messenger delivers outbound messages to a subscriber's channel.
type Messenger interface {
	Send(ctx context.Context, message models.OutboundMessage) error
}

// Catalog resolves product ids referenced by product nodes. It returns an
// error wrapping ErrProductNotFound when an id no longer exists.
type Catalog interface {
	Products(ctx context.Context, ids []string) ([]models.Product, error)
}

// Assistant generates the reply of an ai node.
type Assistant interface {
	Reply(ctx context.Context, prompt string, variables map[string]string) (string, error)
}
