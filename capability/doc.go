// Package capability implements the capability registry: capability
// registration and merging, provider mapping, reciprocal compatibility edges,
// a derived similarity map, greedy provider selection over capability sets,
// and capability-combination quality scoring.
//
// Registration is rare relative to lookups, so the similarity map is rebuilt
// wholesale (O(n²) over registered capabilities) after every registration
// rather than maintained incrementally.
package capability
