// Package serf is a deterministic in-process engine implementing
// pier.Engine.
//
// A Serf owns a small key/value namespace and a checksum chain (the mug).
// Every request runs on one worker goroutine in submission order; its
// completion is posted back to the pier's reactor, where the event
// number, mug and depth the pier observes are updated just before the
// callback runs.
//
// Supported cards:
//
//	boot {who, fake}      record the ship's identity under /x/who
//	put  {key, value}     set a namespace key
//	del  {key}            delete a namespace key
//	ping                  reply with a pong effect on the same wire
//	doze {ms}             ask the timer driver for a wake in ms
//	wake                  timer expiry; counted under /x/wakes
//	belt {line}           terminal input; echoed as a blit effect
//	wyrd {sen, ver, kel}  version negotiation; wend effect on mismatch
//	crash {reason}        always rejected
//
// Snapshots live under the pier directory: Save writes .urb/chk and Cram
// writes a portable copy per event under .urb/roc.
package serf
