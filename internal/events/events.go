package events

import "context"

// Event types
const (
	EventConnectRequestOpened = "connect_request_opened"
	EventSessionCreated       = "session_created"
	EventSessionClosed        = "session_closed"
	EventWalletsUpdated       = "wallets_updated"
)

// StreamWallet carries every wallet-facing event; the WS hub fans it out to
// connected UI clients.
const StreamWallet = "events:wallet"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
