package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Peer is the transport handle for one connected client. Send is
// fire-and-forget: implementations must not block indefinitely, and a send
// error only means the frame was not delivered.
type Peer interface {
	Send(msg ServerMessage) error
}

// Directory maps server-assigned client identities to their live transport
// connections. It owns the session records exclusively: one entry per live
// connection, created on register and destroyed on unregister.
type Directory struct {
	mu    sync.Mutex
	peers map[string]Peer

	// newID is swappable so tests can assign predictable identities.
	newID func() string
}

func NewDirectory() *Directory {
	return &Directory{
		peers: make(map[string]Peer),
		newID: uuid.NewString,
	}
}

// Register assigns a fresh identity to the peer, records the mapping and
// sends the identity-assigned welcome; the client has no other way to learn
// its own identity. Must be called exactly once per connection.
func (d *Directory) Register(p Peer) string {
	d.mu.Lock()
	id := d.newID()
	d.peers[id] = p
	d.mu.Unlock()

	_ = p.Send(ServerMessage{Type: KindIdentityAssigned, ID: id})
	return id
}

func (d *Directory) Lookup(id string) (Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	return p, ok
}

// Unregister removes the identity. Called once per connection from any
// closure cause; redundant calls are no-ops.
func (d *Directory) Unregister(id string) {
	d.mu.Lock()
	delete(d.peers, id)
	d.mu.Unlock()
}

// Len reports the number of live sessions.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}
