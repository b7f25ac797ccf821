package signaling

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ThanojKumarPantangi/videocall/internal/metrics"
)

// testRig is a controller with deterministic identities and in-memory peers.
type testRig struct {
	controller *Controller
	metrics    *metrics.Metrics
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	dir := NewDirectory()
	next := 0
	dir.newID = func() string {
		next++
		return fmt.Sprintf("peer-%d", next)
	}

	m := metrics.New()
	router := NewRouter(dir, nil, m)
	return &testRig{
		controller: NewController(dir, NewPairTable(), router, nil, m),
		metrics:    m,
	}
}

func (r *testRig) connect(t *testing.T) (string, *fakePeer) {
	t.Helper()
	peer := &fakePeer{}
	id := r.controller.Connect(peer)
	msgs := peer.messages()
	if len(msgs) != 1 || msgs[0].Type != KindIdentityAssigned || msgs[0].ID != id {
		t.Fatalf("welcome = %+v, want identity-assigned %q", msgs, id)
	}
	peer.mu.Lock()
	peer.sent = nil
	peer.mu.Unlock()
	return id, peer
}

func (r *testRig) send(t *testing.T, from string, frame string) {
	t.Helper()
	r.controller.HandleMessage(from, []byte(frame))
}

// Full happy path: request, answer, candidates both ways, hangup.
func TestCallLifecycle(t *testing.T) {
	rig := newTestRig(t)
	alice, alicePeer := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{"sdp":"offer"},"name":"Alice"}`, bob))

	bobMsgs := bobPeer.messages()
	if len(bobMsgs) != 1 {
		t.Fatalf("bob received %d frames, want 1", len(bobMsgs))
	}
	req := bobMsgs[0]
	if req.Type != KindCallRequest || req.From != alice || req.Name != "Alice" {
		t.Fatalf("call request = %+v, want from %q name Alice", req, alice)
	}
	if string(req.Payload) != `{"sdp":"offer"}` {
		t.Fatalf("payload = %s, want byte-identical offer", req.Payload)
	}

	rig.send(t, bob, fmt.Sprintf(`{"type":"call-answer","target":%q,"payload":{"sdp":"answer"}}`, alice))

	aliceMsgs := alicePeer.messages()
	if len(aliceMsgs) != 1 || aliceMsgs[0].Type != KindCallAnswer || aliceMsgs[0].From != bob {
		t.Fatalf("alice received %+v, want call-answer from %q", aliceMsgs, bob)
	}
	if string(aliceMsgs[0].Payload) != `{"sdp":"answer"}` {
		t.Fatalf("payload = %s, want byte-identical answer", aliceMsgs[0].Payload)
	}

	rig.send(t, alice, fmt.Sprintf(`{"type":"ice-candidate","target":%q,"payload":{"candidate":"a1"}}`, bob))
	rig.send(t, bob, fmt.Sprintf(`{"type":"ice-candidate","target":%q,"payload":{"candidate":"b1"}}`, alice))

	if got := bobPeer.countKind(KindICECandidate); got != 1 {
		t.Errorf("bob ice candidates = %d, want 1", got)
	}
	if got := alicePeer.countKind(KindICECandidate); got != 1 {
		t.Errorf("alice ice candidates = %d, want 1", got)
	}

	rig.send(t, alice, `{"type":"hangup"}`)

	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Errorf("bob call-ended count = %d, want exactly 1", got)
	}
	if got := alicePeer.countKind(KindCallEnded); got != 0 {
		t.Errorf("alice call-ended count = %d, want 0 (never echoed to the party hanging up)", got)
	}
	if got := rig.metrics.Get(metrics.CallEndedDelivered); got != 1 {
		t.Errorf("call-ended delivered metric = %d, want 1", got)
	}
}

func TestHangupIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))
	rig.send(t, alice, `{"type":"hangup"}`)
	rig.send(t, alice, `{"type":"hangup"}`)
	rig.send(t, alice, `{"type":"hangup"}`)

	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Fatalf("bob call-ended count = %d, want exactly 1", got)
	}
}

func TestHangupAfterPartnerHangupSendsNothing(t *testing.T) {
	rig := newTestRig(t)
	alice, alicePeer := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))
	rig.send(t, alice, `{"type":"hangup"}`)
	rig.send(t, bob, `{"type":"hangup"}`)

	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Errorf("bob call-ended count = %d, want 1", got)
	}
	if got := alicePeer.countKind(KindCallEnded); got != 0 {
		t.Errorf("alice call-ended count = %d, want 0", got)
	}
}

func TestDisconnectNotifiesPartnerExactlyOnce(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))
	rig.controller.Disconnect(alice)

	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Fatalf("bob call-ended count = %d, want exactly 1", got)
	}

	// The dead identity is no longer routable.
	rig.send(t, bob, fmt.Sprintf(`{"type":"ice-candidate","target":%q,"payload":{}}`, alice))
	if got := rig.metrics.Get(metrics.ForwardDroppedTargetNotFound); got != 1 {
		t.Errorf("dropped-forward metric = %d, want 1", got)
	}
}

func TestDisconnectWhileIdleNotifiesNobody(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	_, bobPeer := rig.connect(t)

	rig.controller.Disconnect(alice)

	if got := bobPeer.countKind(KindCallEnded); got != 0 {
		t.Errorf("bob call-ended count = %d, want 0", got)
	}
	if got := rig.metrics.Get(metrics.CallEndedDelivered); got != 0 {
		t.Errorf("call-ended delivered metric = %d, want 0", got)
	}
}

func TestCallRequestToUnknownTargetIsDroppedSilently(t *testing.T) {
	rig := newTestRig(t)
	alice, alicePeer := rig.connect(t)

	rig.send(t, alice, `{"type":"call-request","target":"nobody","payload":{}}`)

	if msgs := alicePeer.messages(); len(msgs) != 0 {
		t.Fatalf("alice received %+v, want nothing (no error frames)", msgs)
	}
	if got := rig.metrics.Get(metrics.ForwardDroppedTargetNotFound); got != 1 {
		t.Errorf("dropped-forward metric = %d, want 1", got)
	}

	// The tentative pairing was still recorded: alice's hangup tears it down
	// and tries to notify "nobody", which is another counted drop, never a
	// delivered call-ended.
	rig.send(t, alice, `{"type":"hangup"}`)
	if got := rig.metrics.Get(metrics.ForwardDroppedTargetNotFound); got != 2 {
		t.Errorf("dropped-forward metric after hangup = %d, want 2", got)
	}
	if got := rig.metrics.Get(metrics.CallEndedDelivered); got != 0 {
		t.Errorf("call-ended delivered metric = %d, want 0", got)
	}
	if msgs := alicePeer.messages(); len(msgs) != 0 {
		t.Fatalf("alice received %+v after hangup, want nothing", msgs)
	}
}

func TestNewCallRequestDisplacesExistingPairing(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	bob, bobPeer := rig.connect(t)
	carol, carolPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))
	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, carol))

	// Bob's call was ended by the overwrite; carol got the fresh request.
	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Errorf("bob call-ended count = %d, want 1", got)
	}
	if got := carolPeer.countKind(KindCallRequest); got != 1 {
		t.Errorf("carol call-request count = %d, want 1", got)
	}
	if got := rig.metrics.Get(metrics.PairingsDisplaced); got != 1 {
		t.Errorf("displaced metric = %d, want 1", got)
	}

	// Hangup now tears down the alice/carol pairing, not the stale one.
	rig.send(t, alice, `{"type":"hangup"}`)
	if got := carolPeer.countKind(KindCallEnded); got != 1 {
		t.Errorf("carol call-ended count = %d, want 1", got)
	}
	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Errorf("bob call-ended count = %d, still want 1", got)
	}
}

// The from field always carries the server-known identity of the sending
// connection, whatever the client claims about itself.
func TestForwardedFromCannotBeSpoofed(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	// "from" is not even a valid inbound field; strict parsing rejects it.
	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{},"from":"someone-else"}`, bob))
	if got := bobPeer.countKind(KindCallRequest); got != 0 {
		t.Fatalf("spoofed frame was forwarded")
	}
	if got := rig.metrics.Get(metrics.MessagesRejected); got != 1 {
		t.Errorf("rejected metric = %d, want 1", got)
	}

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))
	msgs := bobPeer.messages()
	if len(msgs) != 1 || msgs[0].From != alice {
		t.Fatalf("forwarded from = %+v, want %q", msgs, alice)
	}
}

func TestMalformedMessageDoesNotDisturbCall(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))
	rig.send(t, alice, `not json at all`)
	rig.send(t, alice, `{"type":"teleport"}`)

	if got := rig.metrics.Get(metrics.MessagesRejected); got != 2 {
		t.Errorf("rejected metric = %d, want 2", got)
	}

	// The pairing survives; a hangup still reaches bob.
	rig.send(t, alice, `{"type":"hangup"}`)
	if got := bobPeer.countKind(KindCallEnded); got != 1 {
		t.Errorf("bob call-ended count = %d, want 1", got)
	}
}

func TestCallEndedDeliveryFailureStillTearsDown(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.connect(t)
	bob, bobPeer := rig.connect(t)

	rig.send(t, alice, fmt.Sprintf(`{"type":"call-request","target":%q,"payload":{}}`, bob))

	bobPeer.mu.Lock()
	bobPeer.err = errors.New("connection reset")
	bobPeer.mu.Unlock()

	rig.send(t, alice, `{"type":"hangup"}`)

	if got := rig.metrics.Get(metrics.CallEndedDelivered); got != 0 {
		t.Errorf("call-ended delivered metric = %d, want 0 on write failure", got)
	}

	// Teardown completed regardless: bob's own hangup finds no pairing.
	bobPeer.mu.Lock()
	bobPeer.err = nil
	bobPeer.mu.Unlock()
	rig.send(t, bob, `{"type":"hangup"}`)
	if got := rig.metrics.Get(metrics.CallEndedDelivered); got != 0 {
		t.Errorf("call-ended delivered metric = %d after late hangup, want 0", got)
	}
}
