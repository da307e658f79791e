// Package mailbox lets any task in the cluster send a message to a specific inbox, on a specific worker thread,
// on a specific peer.
//
// A [Mailbox] is created on a worker thread with a [Callback], and registers itself in that thread's [Table].
// Its [Address] can be handed to anyone; [Manager.Send] prefixes the payload with an envelope naming the
// destination thread and id, and hands it to the transport. On the receiving side, [Manager.OnMessage] reads the
// envelope, hops onto the destination thread, and runs the mailbox's callback as a new task on it.
// The next message of the same connection is only read after that callback signalled completion.
//
// Delivery is best-effort: messages for mailboxes that no longer exist are logged and dropped, and the sender
// is never told.
package mailbox
