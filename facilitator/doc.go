// Package facilitator orchestrates the coordination core: it tracks tasks,
// registers agents into the registry and advertisement store, forms teams
// through inquiry and recruitment, runs breakdown votes, and keeps
// delegation-performance aggregates that feed future team assembly.
package facilitator
