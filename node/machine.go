//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package node

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/markkurossi/arithmpc/calc"
	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/commitment"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/share"
)

// ProtocolAbort reports an active-security failure: a MAC-audit
// zero-sum mismatch or a commitment/proof inconsistency. It is fatal
// for every honest party.
type ProtocolAbort struct {
	Cid    circuit.CirId
	Reason string
}

func (e *ProtocolAbort) Error() string {
	return fmt.Sprintf("node: protocol abort at %v: %s", e.Cid, e.Reason)
}

// ErrChannelClosed reports that the party's event channel closed
// before the node reached a final result.
var ErrChannelClosed = errors.New("node: channel closed")

// Node is the per-party evaluation driver. Construct with New and run
// with Run; a Node is used for exactly one evaluation.
type Node struct {
	partyID int
	n       int

	cmds   *queue.Queue[Command]
	events *queue.Queue[Event]

	alpha     field.Elem
	haveAlpha bool

	evaluated map[circuit.CirId]share.Share
	fullyOpen map[circuit.CirId][]share.Share
	beavers   map[circuit.CirId]share.Triple

	varMaskShare map[circuit.CirId]share.Share
	varMasked    map[circuit.CirId]field.Elem

	myProofs    map[circuit.CirId]commitment.Proof
	commitments map[circuit.CirId][]PartyHash
	proofs      map[circuit.CirId][]PartyProof
	validCids   map[circuit.CirId]bool
	invalidCids map[circuit.CirId]bool

	// auditedIds records every sub-id a commitment/proof round was run
	// for, in the order they were created, so the final audit knows
	// exactly which ids it must gather proofs for.
	auditedIds []circuit.CirId

	inputs       map[string]uint64
	selfVarNames map[circuit.CirId]string
}

// New constructs a Node for the given party index out of n, wired to
// its Party task's command and event channels. inputs holds this
// party's own private variable values, keyed by variable name.
func New(partyID, n int, cmds *queue.Queue[Command], events *queue.Queue[Event], inputs map[string]uint64) *Node {
	return &Node{
		partyID:      partyID,
		n:            n,
		cmds:         cmds,
		events:       events,
		evaluated:    make(map[circuit.CirId]share.Share),
		fullyOpen:    make(map[circuit.CirId][]share.Share),
		beavers:      make(map[circuit.CirId]share.Triple),
		varMaskShare: make(map[circuit.CirId]share.Share),
		varMasked:    make(map[circuit.CirId]field.Elem),
		myProofs:     make(map[circuit.CirId]commitment.Proof),
		commitments:  make(map[circuit.CirId][]PartyHash),
		proofs:       make(map[circuit.CirId][]PartyProof),
		validCids:    make(map[circuit.CirId]bool),
		invalidCids:  make(map[circuit.CirId]bool),
		inputs:       inputs,
		selfVarNames: make(map[circuit.CirId]string),
	}
}

// Run walks sched to completion and returns the integer result of the
// root node rootID, after every party has passed the final commit-open
// audit. mulIDs and selfVars are, respectively, the Mul circuit-node
// ids and the (cid, name) pairs of the Variable nodes this party owns
// - both precomputed once from the decorated tree so the node can
// issue its startup requests before it starts walking the schedule.
func (nd *Node) Run(sched []circuit.ScheduledOp, mulIDs []circuit.CirId,
	selfVars []circuit.VarRef, rootID circuit.CirId) (uint64, error) {

	nd.send(Command{Kind: CmdNeedAlpha})
	for _, cid := range mulIDs {
		nd.send(Command{Kind: CmdNeedBeaver, Cid: cid})
	}
	for _, v := range selfVars {
		nd.selfVarNames[v.Id] = v.Name
		nd.send(Command{Kind: CmdOpenSelfInput, Cid: v.Id})
	}

	if err := nd.waitAlpha(); err != nil {
		return 0, err
	}

	for _, op := range sched {
		if err := nd.step(op); err != nil {
			return 0, err
		}
	}

	return nd.finalAudit(rootID)
}

func (nd *Node) send(cmd Command) {
	nd.cmds.Push(cmd)
}

// next blocks for the next event and applies it, returning
// ErrChannelClosed if the party's event queue closed.
func (nd *Node) next() error {
	ev, ok := nd.events.Pop()
	if !ok {
		return ErrChannelClosed
	}
	return nd.apply(ev)
}

// waitAlpha drains events, applying each one generically, until alpha
// has arrived. Any Beaver/variable/commitment material that shows up
// before alpha does is absorbed into the node's maps exactly as it
// would be later; nothing is dropped.
func (nd *Node) waitAlpha() error {
	return nd.waitFor(func() bool { return nd.haveAlpha })
}

// apply folds one inbound Event into the node's state. It is safe to
// call for events that arrive well ahead of the schedule position
// that needs them - the data simply waits in the corresponding map.
func (nd *Node) apply(ev Event) error {
	switch ev.Kind {
	case EventAlpha:
		nd.alpha = ev.Elem
		nd.haveAlpha = true

	case EventBeaverSharesFor:
		nd.beavers[ev.Cid] = share.Triple{A: ev.Triple.A, B: ev.Triple.B, C: ev.Triple.C}

	case EventNodeSelfVariable:
		x, ok := nd.inputs[nd.selfVarName(ev.Cid)]
		if !ok {
			return &ProtocolAbort{Cid: ev.Cid, Reason: "missing private input for owned variable"}
		}
		masked := field.FromUint64(x).Sub(ev.Elem)
		nd.send(Command{Kind: CmdOpenSelfShare, Cid: ev.Cid, Elem: masked})
		nd.evaluated[ev.Cid] = calc.AddConst(ev.Share, masked, nd.alpha, nd.partyID)

	case EventNodeVariableShared:
		if _, ok := nd.varMaskShare[ev.Cid]; ok {
			log.Printf("[debug] node: duplicate variable mask share for %v dropped", ev.Cid)
			return nil
		}
		nd.varMaskShare[ev.Cid] = ev.Share
		nd.maybeCombineVariable(ev.Cid)

	case EventNodeVariableReady:
		if _, ok := nd.varMasked[ev.Cid]; ok {
			log.Printf("[debug] node: duplicate variable broadcast for %v dropped", ev.Cid)
			return nil
		}
		nd.varMasked[ev.Cid] = ev.Elem
		nd.maybeCombineVariable(ev.Cid)

	case EventCirReady:
		nd.fullyOpen[ev.Cid] = ev.Shares

	case EventCommitmentsFor:
		nd.commitments[ev.Cid] = ev.Commitments

	case EventProofsFor:
		nd.proofs[ev.Cid] = ev.Proofs

	case EventProofValid:
		nd.validCids[ev.Cid] = true

	case EventProofInvalid:
		nd.invalidCids[ev.Cid] = true
		return &ProtocolAbort{Cid: ev.Cid, Reason: "peer reported an invalid audit proof"}
	}
	return nil
}

// maybeCombineVariable assembles evaluated[cid] once both halves of a
// non-owned input variable - the dealer's mask share and the owner's
// broadcast masked value - have arrived, in whichever order.
func (nd *Node) maybeCombineVariable(cid circuit.CirId) {
	if _, done := nd.evaluated[cid]; done {
		return
	}
	maskShare, haveShare := nd.varMaskShare[cid]
	masked, haveMasked := nd.varMasked[cid]
	if !haveShare || !haveMasked {
		return
	}
	nd.evaluated[cid] = calc.AddConst(maskShare, masked, nd.alpha, nd.partyID)
}

func (nd *Node) selfVarName(cid circuit.CirId) string {
	return nd.selfVarNames[cid]
}

// waitFor drains events, applying each one, until have reports true.
func (nd *Node) waitFor(have func() bool) error {
	for !have() {
		if err := nd.next(); err != nil {
			return err
		}
	}
	return nil
}

// step advances the schedule by exactly one scheduled op, the
// Proceed state's only legal transition.
func (nd *Node) step(op circuit.ScheduledOp) error {
	switch op.Kind {
	case circuit.OpKindVar:
		// WaitForVariable: the owner path and the non-owner path both
		// populate evaluated[op.Id] from generic event handling; we
		// only need to wait for it here.
		return nd.waitFor(func() bool {
			_, ok := nd.evaluated[op.Id]
			return ok
		})

	case circuit.OpKindAddConst:
		nd.evaluated[op.Id] = calc.AddConst(nd.evaluated[op.ChildId], op.Const, nd.alpha, nd.partyID)
		return nil

	case circuit.OpKindMulConst:
		nd.evaluated[op.Id] = calc.MulByConst(nd.evaluated[op.ChildId], op.Const)
		return nil

	case circuit.OpKindAdd:
		nd.evaluated[op.Id] = calc.Add(nd.evaluated[op.LeftId], nd.evaluated[op.RightId])
		return nil

	case circuit.OpKindMul:
		return nd.stepMul(op)
	}
	return fmt.Errorf("node: unknown scheduled op kind %d", op.Kind)
}

// stepMul walks WaitForBeaver -> HaveBeaver -> WaitForShares ->
// HaveShares -> WaitForCommitments -> Proceed for a single Mul node.
func (nd *Node) stepMul(op circuit.ScheduledOp) error {
	if err := nd.waitFor(func() bool {
		_, ok := nd.beavers[op.Id]
		return ok
	}); err != nil {
		return err
	}
	triple := nd.beavers[op.Id]
	x, y := nd.evaluated[op.LeftId], nd.evaluated[op.RightId]

	e, f := calc.MulPrepare(x, y, triple)
	eID, fID := subID(op.Id, "e"), subID(op.Id, "f")

	nd.send(Command{Kind: CmdOpenShare, Cid: eID, Share: e})
	nd.send(Command{Kind: CmdOpenShare, Cid: fID, Share: f})

	if err := nd.waitFor(func() bool {
		_, okE := nd.fullyOpen[eID]
		_, okF := nd.fullyOpen[fID]
		return okE && okF
	}); err != nil {
		return err
	}

	eSum := sumShares(nd.fullyOpen[eID])
	fSum := sumShares(nd.fullyOpen[fID])

	nd.evaluated[op.Id] = calc.Mul(triple, eSum, fSum, nd.alpha, nd.partyID)

	dVal := calc.CommitmentValue(eSum, e.M, nd.alpha)
	eVal := calc.CommitmentValue(fSum, f.M, nd.alpha)

	dProof, err := commitment.Commit(dVal)
	if err != nil {
		return err
	}
	eProof, err := commitment.Commit(eVal)
	if err != nil {
		return err
	}
	nd.myProofs[eID] = dProof
	nd.myProofs[fID] = eProof
	nd.auditedIds = append(nd.auditedIds, eID, fID)

	nd.send(Command{Kind: CmdCommit, Cid: eID, Hash: dProof.Hash})
	nd.send(Command{Kind: CmdCommit, Cid: fID, Hash: eProof.Hash})

	return nd.waitFor(func() bool {
		return len(nd.commitments[eID]) == nd.n && len(nd.commitments[fID]) == nd.n
	})
}

func sumShares(shares []share.Share) field.Elem {
	sum := field.Zero()
	for _, s := range shares {
		sum = sum.Add(s.S)
	}
	return sum
}

// finalAudit broadcasts every proof this node accumulated during the
// evaluation, verifies every audited id against the commitments
// gathered earlier, and only then opens and verifies the root result.
func (nd *Node) finalAudit(rootID circuit.CirId) (uint64, error) {
	for _, id := range nd.auditedIds {
		nd.send(Command{Kind: CmdProof, Cid: id, Proof: nd.myProofs[id]})
	}

	for _, id := range nd.auditedIds {
		if err := nd.waitFor(func() bool {
			return len(nd.proofs[id]) == nd.n
		}); err != nil {
			return 0, err
		}
	}

	for _, id := range nd.auditedIds {
		if err := nd.verifyAudited(id); err != nil {
			nd.send(Command{Kind: CmdProofInvalid, Cid: id})
			return 0, err
		}
		nd.send(Command{Kind: CmdProofValid, Cid: id})
	}

	for _, id := range nd.auditedIds {
		if err := nd.waitFor(func() bool {
			return nd.invalidCids[id] || nd.validCids[id]
		}); err != nil {
			return 0, err
		}
		if nd.invalidCids[id] {
			return 0, &ProtocolAbort{Cid: id, Reason: "audit rejected by a peer"}
		}
	}

	return nd.openResult(rootID)
}

// verifyAudited checks one commit-open round: the proofs gathered for
// id must individually hash-verify, each must match the commitment the
// same party broadcast earlier, and their values must sum to zero.
func (nd *Node) verifyAudited(id circuit.CirId) error {
	proofs := append([]PartyProof(nil), nd.proofs[id]...)
	commits := append([]PartyHash(nil), nd.commitments[id]...)
	sort.Slice(proofs, func(i, j int) bool { return proofs[i].Party < proofs[j].Party })
	sort.Slice(commits, func(i, j int) bool { return commits[i].Party < commits[j].Party })

	for i, p := range proofs {
		if !commitment.Verify(p.Proof) {
			return &ProtocolAbort{Cid: id, Reason: "proof does not open its own hash"}
		}
		if i >= len(commits) || commits[i].Party != p.Party || commits[i].Hash != p.Proof.Hash {
			return &ProtocolAbort{Cid: id, Reason: "proof does not match the earlier broadcast commitment"}
		}
	}
	raw := make([]commitment.Proof, len(proofs))
	for i, p := range proofs {
		raw[i] = p.Proof
	}
	if !commitment.ZeroSum(raw) {
		return &ProtocolAbort{Cid: id, Reason: "MAC audit values do not sum to zero"}
	}
	return nil
}

// openResult opens the root share's element component, sums it across
// every party, and runs a second commit-open round over that single
// value before trusting it: every party commits to the share it is
// about to reveal, the commitments are exchanged, then the shares
// themselves are exchanged and checked against the commitments and
// against the already-reconstructed sum. Only after that passes is
// the field element converted to an integer.
func (nd *Node) openResult(rootID circuit.CirId) (uint64, error) {
	root := nd.evaluated[rootID]
	nd.send(Command{Kind: CmdOpenShare, Cid: rootID, Share: root})

	if err := nd.waitFor(func() bool {
		_, ok := nd.fullyOpen[rootID]
		return ok
	}); err != nil {
		return 0, err
	}
	result := sumShares(nd.fullyOpen[rootID])

	finalID := subID(rootID, "final")
	proof, err := commitment.Commit(root.S)
	if err != nil {
		return 0, err
	}
	nd.myProofs[finalID] = proof
	nd.send(Command{Kind: CmdCommit, Cid: finalID, Hash: proof.Hash})

	if err := nd.waitFor(func() bool {
		return len(nd.commitments[finalID]) == nd.n
	}); err != nil {
		return 0, err
	}

	nd.send(Command{Kind: CmdProof, Cid: finalID, Proof: proof})
	if err := nd.waitFor(func() bool {
		return len(nd.proofs[finalID]) == nd.n
	}); err != nil {
		return 0, err
	}

	proofs := append([]PartyProof(nil), nd.proofs[finalID]...)
	commits := append([]PartyHash(nil), nd.commitments[finalID]...)
	sort.Slice(proofs, func(i, j int) bool { return proofs[i].Party < proofs[j].Party })
	sort.Slice(commits, func(i, j int) bool { return commits[i].Party < commits[j].Party })

	sum := field.Zero()
	for i, p := range proofs {
		if !commitment.Verify(p.Proof) {
			return 0, &ProtocolAbort{Cid: finalID, Reason: "final proof does not open its own hash"}
		}
		if i >= len(commits) || commits[i].Party != p.Party || commits[i].Hash != p.Proof.Hash {
			return 0, &ProtocolAbort{Cid: finalID, Reason: "final proof does not match its commitment"}
		}
		sum = sum.Add(p.Proof.Value)
	}
	if !sum.Equal(result) {
		return 0, &ProtocolAbort{Cid: finalID, Reason: "final opening disagrees with the committed shares"}
	}

	nd.send(Command{Kind: CmdProofValid, Cid: finalID})
	return result.Uint64(), nil
}
