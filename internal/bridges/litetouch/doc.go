// Package litetouch implements the LiteTouch lighting panel bridge for Gray Logic.
//
// This package talks to a LiteTouch 5000LC / Savant SSL P-018 panel over its
// line-oriented ASCII protocol, either on a raw TCP socket or an RS-232 port.
// It controls loads and keypad buttons and reports keypad LED changes.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │ LiteTouch Bridge│  TCP / RS-232
//	│      Core       │◄────────►│   (this pkg)    │◄─────────────► Panel
//	└─────────────────┘          └─────────────────┘
//
// # Wire Protocol
//
// Frames are comma-separated ASCII fields terminated by a carriage return.
// Outbound frames start with "R":
//
//	R,CSLON,0        load 1 on (loads are zero-based on the wire)
//	R,CINLL,4,75     load 5 to 75%
//	R,CTGSW,0148     keypad 014, button 9
//	R,CGLES,014      LED mask query for keypad 014
//	R,SIEVN,7        subscribe to notifications
//
// The panel pushes unsolicited notifications such as "R,RLEDU,014,101000000"
// (one LED digit per button) alongside replies to queries. Replies carry no
// correlation id, so only one query may be outstanding at a time.
//
// # Concurrency
//
// One reader goroutine owns the read side of the transport. Query replies
// reach the waiting caller through the pending-query tracker; callers never
// read from the transport themselves. Events are delivered in frame order.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package litetouch
