//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package calc implements the pure local linear algebra a party
// performs on its own authenticated Shares: addition, subtraction,
// scaling and offsetting by a public constant, Beaver-triple
// preparation and completion, and the MAC-audit commitment values.
// Every function here is a pure function of the caller's own
// Share(s), its party index, and its MAC key share; none of them
// touch the network.
package calc

import (
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/share"
)

// Add returns the local share of x+y given the local shares of x, y.
func Add(x, y share.Share) share.Share {
	return x.Add(y)
}

// Sub returns the local share of x-y given the local shares of x, y.
func Sub(x, y share.Share) share.Share {
	return x.Sub(y)
}

// MulByConst returns the local share of k*x given the local share of
// x and the public constant k.
func MulByConst(x share.Share, k field.Elem) share.Share {
	return share.Share{S: x.S.Mul(k), M: x.M.Mul(k)}
}

// AddConst returns the local share of x+k given the local share of x,
// the public constant k, this party's MAC key share alpha, and its
// party index. Only party 0 folds k into its element share; every
// party folds alpha*k into its MAC share, so that the additive
// invariant (the element shares sum to x+k, the MAC shares sum to
// alpha*(x+k)) holds with the public offset counted exactly once.
func AddConst(x share.Share, k, alpha field.Elem, partyID int) share.Share {
	s := x.S
	if partyID == 0 {
		s = s.Add(k)
	}
	return share.Share{S: s, M: alpha.Mul(k).Add(x.M)}
}

// MulPrepare computes this party's shares of (x-a) and (y-b) ahead of
// a Beaver multiplication, given the local shares of x and y and the
// A, B legs of the triple drawn for this multiplication node.
func MulPrepare(x, y share.Share, triple share.Triple) (e, f share.Share) {
	return Sub(x, triple.A), Sub(y, triple.B)
}

// Mul completes a Beaver multiplication: given the triple (A,B,C) this
// party holds and the publicly opened values E=open(x-a), F=open(y-b),
// it returns this party's share of x*y. Only party 0 folds the public
// product E*F into its share, matching AddConst's single-owner rule;
// every other party contributes only the cross terms.
func Mul(triple share.Triple, e, f field.Elem, alpha field.Elem, partyID int) share.Share {
	r := MulByConst(triple.A, f)
	r = Add(r, MulByConst(triple.B, e))
	r = Add(r, triple.C)
	return AddConst(r, e.Mul(f), alpha, partyID)
}

// CommitmentValue returns d_i = alpha_i*opened - m, the MAC-audit
// value this party contributes for a value that was just opened to
// the public field element `opened`, whose local MAC share is m. The
// audit accepts an opening iff the sum of every party's d_i is zero.
func CommitmentValue(opened field.Elem, m field.Elem, alpha field.Elem) field.Elem {
	return alpha.Mul(opened).Sub(m)
}
