// Package node supervises one driver per configured node.
//
// Ownership boundary:
// - driver construction from config and reconciliation on reload
// - reconnect pacing after a socket closes or a dial fails
// - session resume negotiation when a node reports ready
// - structured logging and metrics for driver events
package node
