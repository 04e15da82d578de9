//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package node implements the per-party driver of spec.md section
// 4.4: it consumes the flat evaluation schedule produced by the
// circuit package, requests preprocessing material from the dealer,
// opens shares over the network, performs the Beaver exchange for
// every multiplication, and runs the final commit-open audit before
// revealing the result. A Node only ever talks to its party task
// through the Command/Event channels below; it never touches the
// network or the dealer directly.
package node

import (
	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/commitment"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/share"
)

// CommandKind discriminates the variants of a node-to-party command.
type CommandKind int

// Node command kinds.
const (
	CmdNeedAlpha CommandKind = iota
	CmdNeedBeaver
	CmdOpenSelfInput
	CmdOpenSelfShare
	CmdOpenShare
	CmdCommit
	CmdProof
	CmdProofValid
	CmdProofInvalid
)

// Command is one instruction a Node emits to its Party.
type Command struct {
	Kind  CommandKind
	Cid   circuit.CirId
	Share share.Share
	Elem  field.Elem
	Hash  commitment.Hash
	Proof commitment.Proof
}

// EventKind discriminates the variants of a party-to-node event.
type EventKind int

// Node event kinds.
const (
	EventAlpha EventKind = iota
	EventNodeSelfVariable
	EventNodeVariableShared
	EventNodeVariableReady
	EventBeaverSharesFor
	EventCirReady
	EventCommitmentsFor
	EventProofsFor
	EventProofValid
	EventProofInvalid
)

// PartyHash pairs a commitment hash with the index of the party that
// broadcast it.
type PartyHash struct {
	Party int
	Hash  commitment.Hash
}

// PartyProof pairs a commitment proof with the index of the party
// that broadcast it.
type PartyProof struct {
	Party int
	Proof commitment.Proof
}

// Event is one notification a Party delivers to its Node.
type Event struct {
	Kind        EventKind
	Cid         circuit.CirId
	Elem        field.Elem
	Share       share.Share
	Triple      share.Triple
	Shares      []share.Share
	Commitments []PartyHash
	Proofs      []PartyProof
}

// subID derives the stable per-opening sub-identifier used when a Mul
// node opens the two masked Beaver values, e.g. "12-e" and "12-f".
func subID(id circuit.CirId, suffix string) circuit.CirId {
	return circuit.CirId(string(id) + "-" + suffix)
}
