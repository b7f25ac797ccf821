// Package signaling implements the call-session registry and signaling
// router for the videocall server.
//
// Browser clients connect over a WebSocket, receive a server-assigned
// identity, and exchange opaque WebRTC negotiation payloads (offers, answers,
// ICE candidates) addressed by identity. The server tracks which clients are
// paired in a call so that when either side hangs up or drops, the surviving
// party is told exactly once that the call ended. Media never touches the
// server; delivery is best-effort with no acknowledgment.
package signaling
