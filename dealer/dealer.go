//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package dealer implements the trusted preprocessor: the single
// source of the global MAC key alpha's per-party shares, of Beaver
// triples keyed by the circuit-node identifier that will consume
// them, and of the (r, [r]) masks used to open each input variable.
// The dealer is trusted (spec.md's Non-goals explicitly exclude
// protection against a malicious dealer); it is a single task that
// owns all of this state exclusively, so nothing here needs a lock.
package dealer

import (
	"log"

	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/share"
)

// CommandKind discriminates the variants of a party-to-dealer request.
type CommandKind int

// Dealer command kinds (spec.md section 4.6).
const (
	CmdNeedAlpha CommandKind = iota
	CmdBeaverFor
	CmdNodeOpenSelfInput
)

// Command is a request forwarded to the dealer by a party, tagged
// with the id of the party that issued it.
type Command struct {
	Party int
	Kind  CommandKind
	Cid   circuit.CirId
}

// EventKind discriminates the variants of a dealer-to-party reply.
type EventKind int

// Dealer event kinds (spec.md section 6).
const (
	EventAlpha EventKind = iota
	EventNodeSelfVariable
	EventNodeVariableShared
	EventBeaverSharesFor
)

// Event is a reply the dealer routes back to a single party.
type Event struct {
	Kind   EventKind
	Cid    circuit.CirId
	Elem   field.Elem   // EventAlpha: alpha share; EventNodeSelfVariable: r
	Share  share.Share  // EventNodeSelfVariable / EventNodeVariableShared: [r]
	Triple share.Triple // EventBeaverSharesFor
}

// Dealer is the process-wide trusted source of preprocessing
// material. It must be constructed with New and driven by Run from a
// single goroutine; its maps are never touched from any other task.
type Dealer struct {
	n           int
	alpha       field.Elem
	alphaShares []field.Elem

	beavers        map[circuit.CirId][]share.Triple
	variablesOwned map[circuit.CirId]int
}

// New samples alpha and derives its n per-party shares.
func New(n int) (*Dealer, error) {
	alpha, err := field.Random()
	if err != nil {
		return nil, err
	}
	alphaShares, err := share.ElemsFromSecret(alpha, n)
	if err != nil {
		return nil, err
	}
	return &Dealer{
		n:              n,
		alpha:          alpha,
		alphaShares:    alphaShares,
		beavers:        make(map[circuit.CirId][]share.Triple),
		variablesOwned: make(map[circuit.CirId]int),
	}, nil
}

// Run consumes cmds until the queue is closed, dispatching replies to
// the per-party event queue toParty[cmd.Party]. It never blocks on a
// slow party: every toParty queue is unbounded.
func (d *Dealer) Run(cmds *queue.Queue[Command], toParty []*queue.Queue[Event]) {
	for {
		cmd, ok := cmds.Pop()
		if !ok {
			return
		}
		switch cmd.Kind {
		case CmdNeedAlpha:
			toParty[cmd.Party].Push(Event{
				Kind: EventAlpha,
				Elem: d.alphaShares[cmd.Party],
			})

		case CmdBeaverFor:
			triples, ok := d.beavers[cmd.Cid]
			if !ok {
				var err error
				triples, err = share.RandomBeaver(d.alphaShares)
				if err != nil {
					log.Printf("dealer: generating beaver triple for %v: %v", cmd.Cid, err)
					continue
				}
				d.beavers[cmd.Cid] = triples
			}
			toParty[cmd.Party].Push(Event{
				Kind:   EventBeaverSharesFor,
				Cid:    cmd.Cid,
				Triple: triples[cmd.Party],
			})

		case CmdNodeOpenSelfInput:
			d.openSelfInput(cmd, toParty)
		}
	}
}

func (d *Dealer) openSelfInput(cmd Command, toParty []*queue.Queue[Event]) {
	if _, ok := d.variablesOwned[cmd.Cid]; ok {
		log.Printf("[debug] dealer: duplicate NodeOpenSelfInput for %v dropped", cmd.Cid)
		return
	}
	d.variablesOwned[cmd.Cid] = cmd.Party

	r, err := field.Random()
	if err != nil {
		log.Printf("dealer: sampling mask for %v: %v", cmd.Cid, err)
		return
	}
	rShares, err := share.SharesFromSecret(r, d.alphaShares)
	if err != nil {
		log.Printf("dealer: sharing mask for %v: %v", cmd.Cid, err)
		return
	}

	for p := 0; p < d.n; p++ {
		if p == cmd.Party {
			toParty[p].Push(Event{
				Kind:  EventNodeSelfVariable,
				Cid:   cmd.Cid,
				Elem:  r,
				Share: rShares[p],
			})
			continue
		}
		toParty[p].Push(Event{
			Kind:  EventNodeVariableShared,
			Cid:   cmd.Cid,
			Share: rShares[p],
		})
	}
}
