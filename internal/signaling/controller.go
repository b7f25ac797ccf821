package signaling

import (
	"io"
	"log/slog"

	"github.com/ThanojKumarPantangi/videocall/internal/metrics"
)

// Controller orchestrates the call lifecycle. It is the only writer of the
// pairing table; the directory and table are injected so tests can drive the
// controller with in-memory peers.
//
// Per pair the call moves Idle to Ringing (call-request forwarded, pairing
// tentatively recorded), to Active (answer forwarded), to Ended (pairing removed,
// surviving party notified exactly once). Pairing on request rather than on
// answer means a call abandoned during ringing still tears down cleanly.
type Controller struct {
	dir    *Directory
	pairs  *PairTable
	router *Router

	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewController(dir *Directory, pairs *PairTable, router *Router, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		dir:     dir,
		pairs:   pairs,
		router:  router,
		log:     logger,
		metrics: m,
	}
}

// Connect registers a new transport connection and returns its assigned
// identity. The directory sends the identity-assigned welcome as part of
// registration.
func (c *Controller) Connect(p Peer) string {
	id := c.dir.Register(p)
	c.metrics.Inc(metrics.ConnectionsOpened)
	c.log.Info("client connected", "id", id)
	return id
}

// HandleMessage processes one inbound frame from sender. Malformed frames
// are counted and dropped; the connection stays up.
func (c *Controller) HandleMessage(sender string, data []byte) {
	c.metrics.Inc(metrics.MessagesReceived)

	msg, err := ParseClientMessage(data)
	if err != nil {
		c.metrics.Inc(metrics.MessagesRejected)
		c.log.Debug("rejected message", "from", sender, "err", err)
		return
	}

	switch msg.Type {
	case KindCallRequest:
		c.handleCallRequest(sender, msg)
	case KindCallAnswer:
		c.metrics.Inc(metrics.CallsAnswered)
		c.router.Forward(KindCallAnswer, msg.Target, msg.Payload, sender, "")
	case KindICECandidate:
		c.metrics.Inc(metrics.CandidatesRelayed)
		c.router.Forward(KindICECandidate, msg.Target, msg.Payload, sender, "")
	case KindHangup:
		c.handleHangup(sender)
	}
}

// handleCallRequest records the pairing before the callee accepts, so a
// hangup or disconnect while ringing still notifies the other side. If the
// callee is unknown the request is dropped silently (the pairing stays, per
// the best-effort contract) and the caller's next teardown finds no live
// partner to notify.
func (c *Controller) handleCallRequest(caller string, msg ClientMessage) {
	c.metrics.Inc(metrics.CallsInitiated)

	displaced := c.pairs.Pair(caller, msg.Target)
	for _, old := range displaced {
		// The overwrite ended the displaced identity's call; tell it so, same
		// as any other teardown.
		c.metrics.Inc(metrics.PairingsDisplaced)
		if c.router.Forward(KindCallEnded, old, nil, "", "") {
			c.metrics.Inc(metrics.CallEndedDelivered)
		}
		c.log.Info("pairing displaced", "displaced", old, "caller", caller, "callee", msg.Target)
	}

	c.router.Forward(KindCallRequest, msg.Target, msg.Payload, caller, msg.Name)
	c.log.Info("call requested", "caller", caller, "callee", msg.Target)
}

// handleHangup tears down sender's pairing. Idempotent: a second hangup, or
// one racing the partner's own teardown, finds nothing and sends nothing.
// The surviving party hears call-ended exactly once, and never from its own
// hangup.
func (c *Controller) handleHangup(sender string) {
	partner, ok := c.pairs.Unpair(sender)
	if !ok {
		return
	}
	if c.router.Forward(KindCallEnded, partner, nil, "", "") {
		c.metrics.Inc(metrics.CallEndedDelivered)
	}
	c.log.Info("call ended", "by", sender, "partner", partner)
}

// Disconnect runs the cleanup for a closed transport connection, whatever
// closed it. An abrupt network drop produces the same observable effect on
// the remaining party as an explicit hangup.
func (c *Controller) Disconnect(id string) {
	partner, ok := c.pairs.Unpair(id)
	if ok {
		if c.router.Forward(KindCallEnded, partner, nil, "", "") {
			c.metrics.Inc(metrics.CallEndedDelivered)
		}
		c.log.Info("call ended by disconnect", "disconnected", id, "partner", partner)
	}

	c.dir.Unregister(id)
	c.metrics.Inc(metrics.ConnectionsClosed)
	c.log.Info("client disconnected", "id", id)
}
