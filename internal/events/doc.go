// Package events defines the event envelope shared by all lifecycle
// topics, the consumer outcome taxonomy, and publisher implementations.
// The transport is assumed to be at-least-once and unordered: every
// consumer must tolerate redelivery and reordering of envelopes.
package events
