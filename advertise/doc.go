// Package advertise implements time-boxed capability advertisements: agents
// broadcast what they can do, with what confidence, and how available they
// are. Lookups only ever see an agent's most recent still-valid
// advertisement; expired advertisements are announced and retained as
// history, never hard-deleted.
package advertise
