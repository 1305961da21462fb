package ws

// ClientMsg is a message read from a websocket client.
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	EventID string `json:"eventId"` // required for subscribe/unsubscribe; "*" follows every event
}

// AllEvents subscribes a client to the whole activity feed.
const AllEvents = "*"
