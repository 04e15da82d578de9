//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package driver

import (
	"sync"
	"testing"

	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/dealer"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/network"
	"github.com/markkurossi/arithmpc/node"
	"github.com/markkurossi/arithmpc/party"
)

// tamperingNetwork corrupts the element share of every KindOpenShare
// broadcast for one chosen circuit-node id, simulating a party that
// deviates from the protocol during an opening (spec.md section 8
// scenario 5).
type tamperingNetwork struct {
	network.Network
	target circuit.CirId
}

func (t *tamperingNetwork) Broadcast(msg network.Message) error {
	if msg.Kind == network.KindOpenShare && msg.Cid == t.target {
		msg.Share.S = msg.Share.S.Add(field.FromUint64(1))
	}
	return t.Network.Broadcast(msg)
}

// TestTamperedOpeningAbortsWithMatchingCid runs the same wiring as
// RunNodes but has party 0 broadcast a corrupted opening of the
// multiplication's Beaver "e" value.
// Every honest party must abort the evaluation via a ProtocolAbort
// naming the same circuit-node id.
func TestTamperedOpeningAbortsWithMatchingCid(t *testing.T) {
	const n = 2
	expr := circuit.Bin(circuit.Variable("v0"), circuit.Variable("v1"), circuit.OpMul)
	inputs := []map[string]uint64{{"v0": 5}, {"v1": 6}}

	ownership := map[string]int{"v0": 0, "v1": 1}
	provider := circuit.NewProvider(ownership)
	decorated, err := circuit.Decorate(expr, provider)
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}
	sched := decorated.IntoOrdered()
	mulIDs := decorated.MulIds()
	rootID := decorated.CirId()
	// Target the "e" opening of the (only) multiplication node: this is
	// exactly the value the MAC audit's zero-sum check (spec.md section
	// 4.4 step 3) is built to catch.
	target := circuit.CirId(string(mulIDs[0]) + "-e")

	d, err := dealer.New(n)
	if err != nil {
		t.Fatalf("dealer.New: %v", err)
	}

	nets := network.NewChannelNetworks(n)
	tampered := make([]network.Network, n)
	tampered[0] = &tamperingNetwork{Network: nets[0], target: target}
	tampered[1] = nets[1]

	dealerCmds := queue.New[dealer.Command]()
	dealerEvents := make([]*queue.Queue[dealer.Event], n)
	nodeCmds := make([]*queue.Queue[node.Command], n)
	nodeEvents := make([]*queue.Queue[node.Event], n)
	parties := make([]*party.Party, n)
	for i := 0; i < n; i++ {
		dealerEvents[i] = queue.New[dealer.Event]()
		nodeCmds[i] = queue.New[node.Command]()
		nodeEvents[i] = queue.New[node.Event]()
		parties[i] = party.New(i, n, tampered[i], nodeCmds[i], nodeEvents[i], dealerCmds, dealerEvents[i])
	}

	var dealerWG sync.WaitGroup
	dealerWG.Go(func() { d.Run(dealerCmds, dealerEvents) })

	var partyWG sync.WaitGroup
	for i := 0; i < n; i++ {
		p := parties[i]
		partyWG.Go(func() { p.Run() })
	}

	errs := make([]error, n)
	var nodeWG sync.WaitGroup
	for i := 0; i < n; i++ {
		owner := i
		selfVars := decorated.SelfVarIds(&owner)
		nd := node.New(i, n, nodeCmds[i], nodeEvents[i], inputs[i])
		nodeWG.Go(func() {
			_, errs[i] = nd.Run(sched, mulIDs, selfVars, rootID)
		})
	}
	nodeWG.Wait()

	for i := 0; i < n; i++ {
		nodeCmds[i].Close()
		dealerEvents[i].Close()
	}
	network.Close(nets)
	dealerCmds.Close()
	dealerWG.Wait()
	partyWG.Wait()

	var cids []circuit.CirId
	for i, e := range errs {
		if e == nil {
			t.Fatalf("party %d: expected a ProtocolAbort, got a result", i)
		}
		abort, ok := e.(*node.ProtocolAbort)
		if !ok {
			t.Fatalf("party %d: error %v is not a *node.ProtocolAbort", i, e)
		}
		cids = append(cids, abort.Cid)
	}
	if cids[0] != cids[1] {
		t.Errorf("parties disagree on the aborted circuit-node id: %v vs %v", cids[0], cids[1])
	}
}
