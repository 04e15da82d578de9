//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package party implements the message router of spec.md section
// 4.5: it fans node commands out to the network or the dealer, fans
// inbound network messages and dealer events back in to the node as
// higher-level events, and aggregates per-circuit-node collections
// (shares, commitments, proofs, statuses) across all N parties with
// duplicate detection so that a repeated message can never be
// double-counted toward an aggregation threshold.
package party

import (
	"log"
	"sync/atomic"

	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/dealer"
	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/network"
	"github.com/markkurossi/arithmpc/node"
	"github.com/markkurossi/arithmpc/share"
)

// seenKey identifies one (sender, circuit-node, message-kind) tuple
// for duplicate detection. The first arrival of a key is accepted;
// every later arrival of the same key is logged and dropped - this is
// the resolved semantics of spec.md's Open Question on duplicate
// detection (first insert succeeds, repeats are dropped, never the
// reverse).
type seenKey struct {
	party int
	cid   circuit.CirId
	kind  network.Kind
}

// Party is the per-party router. Construct with New and drive with
// Run from its own goroutine.
type Party struct {
	id int
	n  int

	net network.Network

	nodeCmds   *queue.Queue[node.Command]
	nodeEvents *queue.Queue[node.Event]
	dealerCmds *queue.Queue[dealer.Command]
	dealerEvts *queue.Queue[dealer.Event]

	seen map[seenKey]bool

	sharesPer  map[circuit.CirId][]share.Share
	commitsPer map[circuit.CirId][]node.PartyHash
	proofsPer  map[circuit.CirId][]node.PartyProof
	validPer   map[circuit.CirId]map[int]bool
	invalid    map[circuit.CirId]bool

	// attestEvts, when attached via AttachAttest, receives every
	// inbound network.KindAttest envelope instead of it being
	// silently dropped. It is an atomic.Pointer because Run's network
	// pump goroutine may already be live in another goroutine by the
	// time a caller attaches the attest package's inbox queue.
	attestEvts atomic.Pointer[queue.Queue[network.Envelope]]
}

// AttachAttest registers q as the destination for inbound
// network.KindAttest envelopes, so that an attest.Peer sharing this
// party's Network can run its own ceremony over the same transport
// without racing Run's own Receive call for the same messages (see
// spec expansion's "Attestation" component). Safe to call at any time,
// including while Run is already executing in another goroutine.
func (p *Party) AttachAttest(q *queue.Queue[network.Envelope]) {
	p.attestEvts.Store(q)
}

// New constructs a Party for participant id out of n peers.
func New(id, n int, net network.Network,
	nodeCmds *queue.Queue[node.Command], nodeEvents *queue.Queue[node.Event],
	dealerCmds *queue.Queue[dealer.Command], dealerEvts *queue.Queue[dealer.Event]) *Party {

	return &Party{
		id:         id,
		n:          n,
		net:        net,
		nodeCmds:   nodeCmds,
		nodeEvents: nodeEvents,
		dealerCmds: dealerCmds,
		dealerEvts: dealerEvts,
		seen:       make(map[seenKey]bool),
		sharesPer:  make(map[circuit.CirId][]share.Share),
		commitsPer: make(map[circuit.CirId][]node.PartyHash),
		proofsPer:  make(map[circuit.CirId][]node.PartyProof),
		validPer:   make(map[circuit.CirId]map[int]bool),
		invalid:    make(map[circuit.CirId]bool),
	}
}

// Run drives the router until its three inbound sources - the
// network, the node's command queue, and the dealer's event queue -
// have all closed. It fans each of them into its own pump goroutine
// feeding its own Go channel, so that the final select is a fair,
// non-starving three-way choice (spec.md section 5) instead of a
// fixed-priority poll.
func (p *Party) Run() {
	type netMsg struct {
		env network.Envelope
		ok  bool
	}
	type cmdMsg struct {
		cmd node.Command
		ok  bool
	}
	type dealerMsg struct {
		ev dealer.Event
		ok bool
	}

	netCh := make(chan netMsg)
	cmdCh := make(chan cmdMsg)
	dealerCh := make(chan dealerMsg)

	go func() {
		for {
			env, ok := p.net.Receive()
			netCh <- netMsg{env, ok}
			if !ok {
				return
			}
		}
	}()
	go func() {
		for {
			cmd, ok := p.nodeCmds.Pop()
			cmdCh <- cmdMsg{cmd, ok}
			if !ok {
				return
			}
		}
	}()
	go func() {
		for {
			ev, ok := p.dealerEvts.Pop()
			dealerCh <- dealerMsg{ev, ok}
			if !ok {
				return
			}
		}
	}()

	netOpen, cmdOpen, dealerOpen := true, true, true
	for netOpen || cmdOpen || dealerOpen {
		select {
		case m := <-netCh:
			if !m.ok {
				netOpen = false
				netCh = nil
				continue
			}
			p.handleNetwork(m.env)

		case m := <-cmdCh:
			if !m.ok {
				cmdOpen = false
				cmdCh = nil
				continue
			}
			p.handleNodeCommand(m.cmd)

		case m := <-dealerCh:
			if !m.ok {
				dealerOpen = false
				dealerCh = nil
				continue
			}
			p.handleDealerEvent(m.ev)
		}
	}
}

func (p *Party) firstTime(from int, cid circuit.CirId, kind network.Kind) bool {
	k := seenKey{party: from, cid: cid, kind: kind}
	if p.seen[k] {
		log.Printf("[debug] party %d: duplicate %v from party %d for %v dropped",
			p.id, kind, from, cid)
		return false
	}
	p.seen[k] = true
	return true
}

func (p *Party) handleNetwork(env network.Envelope) {
	msg := env.Msg
	switch msg.Kind {
	case network.KindOpenShare:
		if !p.firstTime(env.From, msg.Cid, msg.Kind) {
			return
		}
		p.sharesPer[msg.Cid] = append(p.sharesPer[msg.Cid], msg.Share)
		if len(p.sharesPer[msg.Cid]) == p.n {
			p.nodeEvents.Push(node.Event{
				Kind:   node.EventCirReady,
				Cid:    msg.Cid,
				Shares: p.sharesPer[msg.Cid],
			})
		}

	case network.KindOpenVariable:
		// Not aggregated: the sender is always the variable's owner.
		p.nodeEvents.Push(node.Event{
			Kind: node.EventNodeVariableReady,
			Cid:  msg.Cid,
			Elem: msg.Elem,
		})

	case network.KindCommit:
		if !p.firstTime(env.From, msg.Cid, msg.Kind) {
			return
		}
		p.commitsPer[msg.Cid] = append(p.commitsPer[msg.Cid],
			node.PartyHash{Party: env.From, Hash: msg.Hash})
		if len(p.commitsPer[msg.Cid]) == p.n {
			p.nodeEvents.Push(node.Event{
				Kind:        node.EventCommitmentsFor,
				Cid:         msg.Cid,
				Commitments: p.commitsPer[msg.Cid],
			})
		}

	case network.KindProof:
		if !p.firstTime(env.From, msg.Cid, msg.Kind) {
			return
		}
		p.proofsPer[msg.Cid] = append(p.proofsPer[msg.Cid],
			node.PartyProof{Party: env.From, Proof: msg.Proof})
		if len(p.proofsPer[msg.Cid]) == p.n {
			p.nodeEvents.Push(node.Event{
				Kind:   node.EventProofsFor,
				Cid:    msg.Cid,
				Proofs: p.proofsPer[msg.Cid],
			})
		}

	case network.KindProofValid:
		if !p.firstTime(env.From, msg.Cid, msg.Kind) {
			return
		}
		if p.validPer[msg.Cid] == nil {
			p.validPer[msg.Cid] = make(map[int]bool)
		}
		p.validPer[msg.Cid][env.From] = true
		if len(p.validPer[msg.Cid]) == p.n {
			p.nodeEvents.Push(node.Event{Kind: node.EventProofValid, Cid: msg.Cid})
		}

	case network.KindProofInvalid:
		if p.invalid[msg.Cid] {
			return
		}
		p.invalid[msg.Cid] = true
		p.nodeEvents.Push(node.Event{Kind: node.EventProofInvalid, Cid: msg.Cid})

	case network.KindAttest:
		if q := p.attestEvts.Load(); q != nil {
			q.Push(env)
		} else {
			log.Printf("[debug] party %d: KindAttest message from party %d dropped: no attest listener attached",
				p.id, env.From)
		}
	}
}

func (p *Party) handleNodeCommand(cmd node.Command) {
	switch cmd.Kind {
	case node.CmdNeedAlpha:
		p.dealerCmds.Push(dealer.Command{Party: p.id, Kind: dealer.CmdNeedAlpha})

	case node.CmdNeedBeaver:
		p.dealerCmds.Push(dealer.Command{Party: p.id, Kind: dealer.CmdBeaverFor, Cid: cmd.Cid})

	case node.CmdOpenSelfInput:
		p.dealerCmds.Push(dealer.Command{Party: p.id, Kind: dealer.CmdNodeOpenSelfInput, Cid: cmd.Cid})

	case node.CmdOpenSelfShare:
		p.net.Broadcast(network.Message{Kind: network.KindOpenVariable, Cid: cmd.Cid, Elem: cmd.Elem})

	case node.CmdOpenShare:
		p.net.Broadcast(network.Message{Kind: network.KindOpenShare, Cid: cmd.Cid, Share: cmd.Share})

	case node.CmdCommit:
		p.net.Broadcast(network.Message{Kind: network.KindCommit, Cid: cmd.Cid, Hash: cmd.Hash})

	case node.CmdProof:
		p.net.Broadcast(network.Message{Kind: network.KindProof, Cid: cmd.Cid, Proof: cmd.Proof})

	case node.CmdProofValid:
		p.net.Broadcast(network.Message{Kind: network.KindProofValid, Cid: cmd.Cid})

	case node.CmdProofInvalid:
		p.net.Broadcast(network.Message{Kind: network.KindProofInvalid, Cid: cmd.Cid})
	}
}

func (p *Party) handleDealerEvent(ev dealer.Event) {
	switch ev.Kind {
	case dealer.EventAlpha:
		p.nodeEvents.Push(node.Event{Kind: node.EventAlpha, Elem: ev.Elem})

	case dealer.EventNodeSelfVariable:
		p.nodeEvents.Push(node.Event{
			Kind: node.EventNodeSelfVariable, Cid: ev.Cid, Elem: ev.Elem, Share: ev.Share,
		})

	case dealer.EventNodeVariableShared:
		p.nodeEvents.Push(node.Event{
			Kind: node.EventNodeVariableShared, Cid: ev.Cid, Share: ev.Share,
		})

	case dealer.EventBeaverSharesFor:
		p.nodeEvents.Push(node.Event{
			Kind: node.EventBeaverSharesFor, Cid: ev.Cid, Triple: ev.Triple,
		})
	}
}
