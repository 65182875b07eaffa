package client

import "encoding/json"

const (
	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                  = "midmatch"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	eventTypeFull = "full"
	eventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}
