/*
Package qsn verifies a GHZ state shared by the parties of a line network and
uses the verified copy for distributed phase sensing.

A round creates many copies of the shared state. The Verifier, party 0,
secretly assigns most copies to stabilizer tests, keeps one as the target and
discards the rest. Members only ever learn what to do with each copy and, for
tested copies, which basis to measure in. The failure rate of the tests
decides whether the round is accepted; only accepted rounds contribute their
sensing parity to the phase estimate.

Every party is an explicit state machine driven over a Transport and a
Substrate. Mesh and Space are in-memory implementations of both.
*/
package qsn
