// Package fireplace implements the protocol coordinator for DaVinci
// fireplaces.
//
// The fireplace exposes a terse ASCII protocol over raw TCP (default port
// 10001). Lines are terminated by a carriage return, not a newline. The
// coordinator keeps one session open indefinitely and folds replies and
// unsolicited push messages into a single state snapshot.
//
// # Architecture
//
//	┌──────────────┐  enqueue  ┌────────────┐  SET/GET  ┌───────────┐
//	│  Scheduler   │──────────►│ Dispatcher │──────────►│           │
//	└──────────────┘           └────────────┘           │ Fireplace │
//	┌──────────────┐  reduce   ┌────────────┐  replies  │  (TCP)    │
//	│ State Store  │◄──────────│   Codec    │◄──────────│           │
//	└──────────────┘           └────────────┘           └───────────┘
//
// Three goroutines run while the coordinator is started: the session loop
// (connect, read, reconnect with backoff), the dispatcher (rate-limited
// queue drain) and the refresh scheduler (periodic polls).
//
// # Reply Correlation
//
// The protocol carries no request identifiers. A bare reply line belongs
// to the most recently transmitted GET, tracked in a single outstanding
// query marker. The dispatcher holds back the next GET until the marker
// clears or the correlation ceiling (2s) passes. A bare reply that arrives
// with no marker set is discarded.
//
// # Wire Vocabulary
//
//	SET LAMP ON|OFF          GET LAMP
//	SET LAMPLEVEL 0-10       GET LAMPLEVEL
//	SET LED ON|OFF           GET LED
//	SET LEDCOLOR r,g,b,w     GET LEDCOLOR  → RED: n GREEN: n BLUE: n WHITE: n | OFF
//	SET FLAME ON|OFF         GET FLAME
//	SET HEATFAN ON|OFF       GET HEATFAN
//	SET HEATFANSPEED 0-10    GET HEATFANSPEED
//
// Inbound lines are OK, ERROR, HEY <PROPERTY> <value> or a bare value.
//
// # Thread Safety
//
// All exported methods of Coordinator are safe for concurrent use.
package fireplace
