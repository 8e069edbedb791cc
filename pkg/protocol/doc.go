// Package protocol encodes commands for, and decodes frames from, the
// exchange's multiplexed realtime endpoint.
//
// Every frame is a JSON array envelope:
//
//	[type, accountKey, accountKey, payload?]
//
// where type is 0 for ordinary messages, 1 to announce an account on the
// shared socket and 2 to remove it. The account key is repeated in both
// identity slots; the second slot is written for wire compatibility and
// ignored on decode.
//
// Inbound payloads are classified by a single Decode step into the Reply
// variants (ConnectAck, AuthAck, SubscribeAck, UnsubscribeAck, DataMessage,
// AutoCancelAck, StreamError, ForcedDisconnect). The keepalive reply is the
// bare text "pong" and is recognized with IsPong before decoding.
package protocol
