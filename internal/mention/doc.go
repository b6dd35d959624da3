// Package mention implements the mention-dispatch engine.
//
// An inbound group message is classified (full-roster command vs team slug),
// authorized (group-only, optional admin-only, per-chat cooldown), resolved
// into an ordered recipient list, and delivered as a sequence of reply batches
// with throttle backoff and inter-batch pacing.
//
// Batches are sent strictly sequentially: ordering across batches matters and
// the platform's flood control is shared state, so concurrent sends buy
// nothing at this volume.
package mention
