// Package stp implements the per-VLAN spanning tree protocol core
// (IEEE 802.1D with PVST+ encapsulation).
//
// This includes the BPDU codec, the per-VLAN instance table, the 802.1D
// state machine (root selection, configuration update, port state
// selection, topology change propagation), the half-second timer
// scheduler, and the management adapter that translates configuration
// messages into engine operations.
package stp
