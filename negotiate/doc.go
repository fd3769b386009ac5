// Package negotiate implements capability negotiation between agents: short
// lived point-to-point inquiries with a best-provider selection rule, the
// longer lived recruitment protocol (inquiry, proposal, counter-proposal,
// acceptance or rejection), and the team contracts that successful
// recruitment produces.
package negotiate
