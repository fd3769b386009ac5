// Package event provides the typed publish/subscribe bus used by the
// coordination services. Each lifecycle event has its own stream with a
// concrete payload type, so producers and subscribers are checked at compile
// time instead of exchanging an open-ended bag of fields.
package event
