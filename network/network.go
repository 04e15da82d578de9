//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package network implements the abstract multi-party channel the
// core protocol is built on: point-to-point send, broadcast-to-all
// (including the sender), and a blocking receive that surfaces the
// sending party's index with every message. FIFO delivery from a
// single sender is guaranteed; no ordering is guaranteed across
// distinct senders. This package also provides the in-process
// implementation of that abstraction used by the driver and by tests.
package network

import (
	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/commitment"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/share"
)

// Kind discriminates the variants of a peer wire message.
type Kind int

// Peer wire message kinds (spec.md section 6). KindAttest is not part
// of the core protocol; it carries the opaque envelopes of the
// optional attest package (see attest.Peer), which reuses this same
// abstraction instead of opening a second transport.
const (
	KindOpenShare Kind = iota
	KindOpenVariable
	KindCommit
	KindProof
	KindProofValid
	KindProofInvalid
	KindAttest
)

// Message is the single wire-message sum type exchanged between
// parties. Only the fields relevant to Kind are meaningful.
type Message struct {
	Kind    Kind
	Cid     circuit.CirId
	Share   share.Share
	Elem    field.Elem
	Hash    commitment.Hash
	Proof   commitment.Proof
	Payload []byte // KindAttest only
}

// Envelope pairs an inbound Message with the index of the party that
// sent it.
type Envelope struct {
	From int
	Msg  Message
}

// Network is the abstract multi-party channel a party task uses to
// talk to its peers. Implementations must preserve FIFO order for
// messages from a single sender.
type Network interface {
	// SendTo unicasts msg to the given peer index.
	SendTo(to int, msg Message) error
	// Broadcast sends msg to every peer, including the sender itself.
	Broadcast(msg Message) error
	// Receive blocks until a message arrives or the network is
	// closed, in which case ok is false.
	Receive() (Envelope, bool)
}

// channelNetwork is the in-process Network backend: every party owns
// one inbound queue.Queue and holds send-side references to every
// peer's queue, mirroring the "one sender per peer, one shared
// inbound receiver" shape of a real point-to-point transport.
type channelNetwork struct {
	self  int
	peers []*queue.Queue[Envelope] // peers[i] is party i's inbound queue
}

// NewChannelNetworks builds n in-process Networks, one per party,
// fully connected so that every party can send to and receive from
// every other (and itself, for Broadcast).
func NewChannelNetworks(n int) []Network {
	queues := make([]*queue.Queue[Envelope], n)
	for i := range queues {
		queues[i] = queue.New[Envelope]()
	}
	out := make([]Network, n)
	for i := range out {
		out[i] = &channelNetwork{self: i, peers: queues}
	}
	return out
}

// Close shuts down every underlying queue of the in-process networks
// in nets, waking any Receive calls that are blocked so their readers
// (the party tasks' network pumps) see end-of-stream instead of
// hanging forever. Networks of any other type are skipped.
func Close(nets []Network) {
	seen := map[*queue.Queue[Envelope]]bool{}
	for _, n := range nets {
		cn, ok := n.(*channelNetwork)
		if !ok {
			continue
		}
		for _, q := range cn.peers {
			if !seen[q] {
				seen[q] = true
				q.Close()
			}
		}
	}
}

func (c *channelNetwork) SendTo(to int, msg Message) error {
	c.peers[to].Push(Envelope{From: c.self, Msg: msg})
	return nil
}

func (c *channelNetwork) Broadcast(msg Message) error {
	for _, q := range c.peers {
		q.Push(Envelope{From: c.self, Msg: msg})
	}
	return nil
}

func (c *channelNetwork) Receive() (Envelope, bool) {
	return c.peers[c.self].Pop()
}
