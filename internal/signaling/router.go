package signaling

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/ThanojKumarPantangi/videocall/internal/metrics"
)

// Router forwards signaling envelopes to their target connection. It only
// reads the directory and never touches pairing state.
//
// Delivery is at-most-once best-effort: an unknown target means the client
// already disconnected, so the message is dropped and counted, never surfaced
// to the sender.
type Router struct {
	dir     *Directory
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRouter(dir *Directory, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		dir:     dir,
		log:     logger,
		metrics: m,
	}
}

// Forward delivers {kind, payload, from, name} to target. The payload passes
// through byte-identical; from is the server-known sender identity. Returns
// whether the frame was handed to the target's connection.
func (r *Router) Forward(kind Kind, target string, payload json.RawMessage, from, name string) bool {
	peer, ok := r.dir.Lookup(target)
	if !ok {
		r.metrics.Inc(metrics.ForwardDroppedTargetNotFound)
		r.log.Debug("forward dropped, target not found", "kind", kind, "target", target, "from", from)
		return false
	}

	err := peer.Send(ServerMessage{
		Type:    kind,
		From:    from,
		Name:    name,
		Payload: payload,
	})
	if err != nil {
		// Fire-and-forget: a failed write means the target is on its way out;
		// its own disconnect cleanup will notify whoever needs to know.
		r.log.Debug("forward write failed", "kind", kind, "target", target, "err", err)
		return false
	}
	return true
}
