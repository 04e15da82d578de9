//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package attest adds an optional, publicly-verifiable attestation
// step on top of a completed, MAC-audited evaluation: once every party
// has independently reconstructed and verified the same integer result
// (spec.md section 4.4 step 5), the N parties may run a one-time
// threshold-ECDSA keygen and then jointly sign the SHA3-256 digest of
// that result with github.com/bnb-chain/tss-lib/v2. Any third party
// holding the group public key can then check the signature without
// trusting a single participant.
//
// This generalizes crypto/tss.Peer, which hard-codes a two-party
// ("E","G") party set and an ot.IO transport, to N parties indexed
// 0..N-1 routed over the same network.Network abstraction the node,
// party, and dealer tasks use (as network.KindAttest envelopes,
// instead of opening a second transport).
package attest

import (
	"crypto/elliptic"
	"encoding/asn1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"sync/atomic"

	"github.com/bnb-chain/tss-lib/v2/common"
	"github.com/bnb-chain/tss-lib/v2/ecdsa/keygen"
	"github.com/bnb-chain/tss-lib/v2/ecdsa/signing"
	"github.com/bnb-chain/tss-lib/v2/tss"

	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/network"
)

var (
	bo           = binary.BigEndian
	errTruncated = errors.New("attest: truncated message")
	curve        = elliptic.P256()
)

func init() {
	tss.RegisterCurve("secp256r1", curve)
}

// Peer runs the N-party threshold-ECDSA ceremony for one participant.
// Construct with NewPeer and call Keygen once, then Sign any number of
// times over the cached key.
//
// A Peer never calls net.Receive itself: inbound network.KindAttest
// envelopes arrive via inbox, fed by whatever demultiplexes this
// peer's Network (party.Party.AttachAttest does this for the shared
// protocol network; a standalone Peer can be fed by a dedicated
// routing goroutine instead, as in the package's own tests). This
// keeps a Peer from racing another reader of the same Network for the
// same messages.
type Peer struct {
	net   network.Network
	inbox *queue.Queue[network.Envelope]
	n     int
	self  int

	ctx     *tss.PeerContext
	partyID *tss.PartyID

	// active is the ceremony (Keygen or Sign) currently waiting on
	// inbound messages, if any. A single background dispatch
	// goroutine (see NewPeer/dispatch) forwards decoded messages to
	// it; Keygen and Sign never run concurrently on the same Peer, so
	// there is always at most one.
	active atomic.Pointer[pumpTarget]
}

type pumpTarget struct {
	party tss.Party
	inC   chan tss.ParsedMessage
	errC  chan *tss.Error
}

func partyID(i int) *tss.PartyID {
	key := new(big.Int).SetBytes([]byte(fmt.Sprintf("arithmpc-attest-party-%d", i)))
	return tss.NewPartyID(strconv.Itoa(i), fmt.Sprintf("node-%d", i), key)
}

// NewPeer builds the attestation peer for party `self` of n, using net
// as its send-side transport and inbox as its receive-side queue (see
// Peer's doc comment). All n peers must be constructed with the same n
// before any of them call Keygen. NewPeer starts one background
// goroutine that lives for the Peer's lifetime, draining inbox.
func NewPeer(net network.Network, inbox *queue.Queue[network.Envelope], self, n int) *Peer {
	unsorted := make(tss.UnSortedPartyIDs, n)
	for i := 0; i < n; i++ {
		unsorted[i] = partyID(i)
	}
	ids := tss.SortPartyIDs(unsorted)

	var mine *tss.PartyID
	self_ := strconv.Itoa(self)
	for _, id := range ids {
		if id.Id == self_ {
			mine = id
		}
	}
	p := &Peer{
		net:     net,
		inbox:   inbox,
		n:       n,
		self:    self,
		ctx:     tss.NewPeerContext(ids),
		partyID: mine,
	}
	go p.dispatch()
	return p
}

// dispatch is the Peer's single, persistent inbox reader: it decodes
// every envelope pushed by the caller's routing layer and forwards it
// to whichever ceremony is currently active. A message that arrives
// with no active ceremony (e.g. after Sign has already returned) is
// logged and dropped, the same "log and drop" semantics party.Party
// uses for a duplicate or unexpected message.
func (p *Peer) dispatch() {
	for {
		env, ok := p.inbox.Pop()
		if !ok {
			return
		}
		target := p.active.Load()
		if target == nil {
			log.Printf("[debug] attest party %d: message from party %d arrived with no active ceremony, dropped",
				p.self, env.From)
			continue
		}
		msg, err := unmarshal(env.Msg.Payload)
		if err != nil {
			target.errC <- target.party.WrapError(err)
			continue
		}
		target.inC <- msg
	}
}

// Keygen runs the distributed key generation protocol and returns this
// party's share of the group signing key. n-1 is used as the
// threshold so that reconstructing or signing requires all n parties,
// matching the additive N-of-N trust model of the core engine (spec.md
// section 1 Non-goals explicitly excludes threshold k-of-N sharing).
func (p *Peer) Keygen() (*keygen.LocalPartySaveData, error) {
	errC := make(chan *tss.Error, 1)
	outC := make(chan tss.Message, p.n)
	endC := make(chan *keygen.LocalPartySaveData, 1)

	params := tss.NewParameters(curve, p.ctx, p.partyID, p.n, p.n-1)
	party := keygen.NewLocalParty(params, outC, endC).(*keygen.LocalParty)

	inC := make(chan tss.ParsedMessage)
	p.active.Store(&pumpTarget{party: party, inC: inC, errC: errC})
	defer p.active.Store(nil)

	go func() {
		if err := party.Start(); err != nil {
			errC <- err
		}
	}()

	for {
		select {
		case err := <-errC:
			return nil, err

		case msg := <-outC:
			if err := p.route(msg); err != nil {
				return nil, party.WrapError(err)
			}

		case save := <-endC:
			return save, nil

		case msg := <-inC:
			go func() {
				if _, err := party.Update(msg); err != nil {
					errC <- party.WrapError(err)
				}
			}()
		}
	}
}

// Sign jointly signs digest (expected to be a SHA3-256 hash produced
// by the caller over the opened, MAC-audited result) using the key
// share produced by Keygen, and returns the ASN.1 ECDSA signature.
func (p *Peer) Sign(key *keygen.LocalPartySaveData, digest []byte) ([]byte, error) {
	errC := make(chan *tss.Error, 1)
	outC := make(chan tss.Message, p.n)
	endC := make(chan *common.SignatureData, 1)

	params := tss.NewParameters(curve, p.ctx, p.partyID, p.n, p.n-1)
	party := signing.NewLocalParty(new(big.Int).SetBytes(digest), params, *key,
		outC, endC, len(digest)).(*signing.LocalParty)

	inC := make(chan tss.ParsedMessage)
	p.active.Store(&pumpTarget{party: party, inC: inC, errC: errC})
	defer p.active.Store(nil)

	go func() {
		if err := party.Start(); err != nil {
			errC <- err
		}
	}()

	for {
		select {
		case err := <-errC:
			return nil, err

		case msg := <-outC:
			if err := p.route(msg); err != nil {
				return nil, party.WrapError(err)
			}

		case sig := <-endC:
			return asn1Signature(sig)

		case msg := <-inC:
			go func() {
				if _, err := party.Update(msg); err != nil {
					errC <- party.WrapError(err)
				}
			}()
		}
	}
}

// route sends one outbound tss.Message to its destination(s): every
// peer (including self) for a broadcast message, or the listed
// recipients for a point-to-point one.
func (p *Peer) route(msg tss.Message) error {
	data, err := marshal(msg)
	if err != nil {
		return err
	}
	wire := network.Message{Kind: network.KindAttest, Payload: data}

	to := msg.GetTo()
	if to == nil {
		return p.net.Broadcast(wire)
	}
	for _, id := range to {
		idx, err := strconv.Atoi(id.Id)
		if err != nil {
			return err
		}
		if err := p.net.SendTo(idx, wire); err != nil {
			return err
		}
	}
	return nil
}

func marshal(msg tss.Message) ([]byte, error) {
	data, _, err := msg.WireBytes()
	if err != nil {
		return nil, err
	}
	from, err := json.Marshal(msg.GetFrom())
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4+len(data)+4+len(from)+1)
	bo.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	off := 4 + len(data)
	bo.PutUint32(buf[off:], uint32(len(from)))
	copy(buf[off+4:], from)
	if msg.IsBroadcast() {
		buf[len(buf)-1] = 1
	}
	return buf, nil
}

func unmarshal(buf []byte) (tss.ParsedMessage, error) {
	if len(buf) < 9 {
		return nil, errTruncated
	}
	dl := int(bo.Uint32(buf))
	if 4+dl+4 > len(buf) {
		return nil, errTruncated
	}
	data := buf[4 : 4+dl]
	off := 4 + dl
	fl := int(bo.Uint32(buf[off:]))
	off += 4
	if off+fl+1 != len(buf) {
		return nil, errTruncated
	}
	var from tss.PartyID
	if err := json.Unmarshal(buf[off:off+fl], &from); err != nil {
		return nil, err
	}
	broadcast := buf[len(buf)-1] == 1
	return tss.ParseWireMessage(data, &from, broadcast)
}

type ecdsaSig struct {
	R *big.Int
	S *big.Int
}

func asn1Signature(sig *common.SignatureData) ([]byte, error) {
	return asn1.Marshal(ecdsaSig{
		R: new(big.Int).SetBytes(sig.R),
		S: new(big.Int).SetBytes(sig.S),
	})
}
