// Package voting implements a generic multi-choice ballot with quorum and
// majority closing rules. A voting closes on expiry, on full participation,
// or early once a supermajority of eligible voters has cast ballots and one
// choice holds a strict majority of the ballots cast so far.
package voting
