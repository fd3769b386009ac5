// Package types defines the shared vocabulary of the swarm coordination core:
// the structured error model used by every service, the external Agent
// collaborator abstraction, and the tagged request/response shapes exchanged
// with agents.
package types
