// Package pubsub implements the pubsub.memory capability: in-process
// topic brokers.
//
// Guests import from slight:pubsub:
//
//	open(name_ptr, name_len) -> handle
//	publish(handle, topic_ptr, topic_len, msg_ptr, msg_len) -> status
//	subscribe(handle, topic_ptr, topic_len) -> subscription
//	receive(subscription, out_ptr, out_cap) -> len | status
//	unsubscribe(subscription) -> status
//
// With the "archive" option set to a registry name such as
// "kv.filesystem/events", every published message is also written to that
// store. The name is resolved through the shared resource registry at
// publish time.
package pubsub
