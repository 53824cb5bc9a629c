package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Message types pushed to clients.
const (
	TypeMemberJoined = "member_joined"
	TypeRSVPUpdated  = "rsvp_updated"
)

// Message defines the shape of our real-time data.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// MemberJoinedPayload is sent to a club's creator when someone joins.
type MemberJoinedPayload struct {
	ClubID      string `json:"clubId"`
	ClubName    string `json:"clubName"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	MemberCount int    `json:"memberCount"`
}

// RSVPUpdatedPayload is sent to an event's creator when an RSVP changes.
type RSVPUpdatedPayload struct {
	EventID             string `json:"eventId"`
	EventTitle          string `json:"eventTitle"`
	UserID              string `json:"userId"`
	Status              string `json:"status"`
	CurrentParticipants int    `json:"currentParticipants"`
}

// Broker is the central hub for managing SSE client connections.
type Broker struct {
	// One channel per user; a newer connection replaces an older one.
	clients map[string]chan []byte
	mu      sync.RWMutex
}

// NewBroker creates a new Broker instance.
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[string]chan []byte),
	}
}

// AddClient registers a user's connection and returns the channel its
// messages arrive on. A previous connection for the same user is closed.
func (b *Broker) AddClient(userID string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.clients[userID]; ok {
		close(old)
	}
	ch := make(chan []byte, 10)
	b.clients[userID] = ch
	log.Printf("INFO: SSE client connected for user %s", userID)
	return ch
}

// RemoveClient unregisters ch. It is a no-op if ch has already been
// replaced by a newer connection.
func (b *Broker) RemoveClient(userID string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.clients[userID]; ok && current == ch {
		delete(b.clients, userID)
		close(ch)
		log.Printf("INFO: SSE client disconnected for user %s", userID)
	}
}

// CloseAll ends every open stream. Used on server shutdown.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for userID, ch := range b.clients {
		close(ch)
		delete(b.clients, userID)
	}
}

// Connected reports the number of users with an open stream.
func (b *Broker) Connected() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// NotifyUser queues a message for userID and reports whether it was
// delivered to a live connection. It never blocks: a full buffer drops the
// message.
func (b *Broker) NotifyUser(userID string, message Message) bool {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("ERROR: could not marshal SSE message for user %s: %v", userID, err)
		return false
	}

	// Held for the send so RemoveClient cannot close the channel under us.
	b.mu.RLock()
	defer b.mu.RUnlock()

	clientChan, ok := b.clients[userID]
	if !ok {
		return false
	}
	select {
	case clientChan <- jsonMsg:
		return true
	default:
		log.Printf("WARN: SSE channel for user %s is full. Dropping message.", userID)
		return false
	}
}
