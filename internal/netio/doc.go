// Package netio moves BPDU frames between the protocol engine and the
// wire: per-interface raw packet sockets filtered to the two bridge
// group addresses, a shared transmit path with 802.1Q tag handling, and
// an in-memory transport for tests.
package netio
