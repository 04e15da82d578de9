//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package share implements additive secret sharing and MAC-authenticated
// shares over the field package, and the dealer-side generation of
// plain element shares, authenticated shares, and Beaver triples.
package share

import (
	"fmt"

	"github.com/markkurossi/arithmpc/field"
)

// Share is an authenticated additive share (s, m) of a secret x: s is
// party i's additive share of x, and m is party i's additive share of
// the MAC α·x.
type Share struct {
	S field.Elem
	M field.Elem
}

// Add returns the componentwise sum of two shares.
func (a Share) Add(b Share) Share {
	return Share{S: a.S.Add(b.S), M: a.M.Add(b.M)}
}

// Sub returns the componentwise difference of two shares.
func (a Share) Sub(b Share) Share {
	return Share{S: a.S.Sub(b.S), M: a.M.Sub(b.M)}
}

// Triple is one party's authenticated Beaver shares (A, B, C); across
// all N parties the secrets they hide satisfy a·b = c.
type Triple struct {
	A, B, C Share
}

// ElemsFromSecret draws n plain additive shares of secret s: n-1
// uniform elements and a final element that makes the shares sum to
// s. Used to share the global MAC key α and input masks r.
func ElemsFromSecret(s field.Elem, n int) ([]field.Elem, error) {
	if n <= 0 {
		return nil, fmt.Errorf("share: invalid party count %d", n)
	}
	out := make([]field.Elem, n)
	sum := field.Zero()
	for i := 0; i < n-1; i++ {
		r, err := field.Random()
		if err != nil {
			return nil, err
		}
		out[i] = r
		sum = sum.Add(r)
	}
	out[n-1] = s.Sub(sum)
	return out, nil
}

// SharesFromSecret authenticates a plain additive sharing of s against
// the per-party MAC key shares alphaShares: share i is (rᵢ, αᵢ·s),
// where r₁..r_N are a plain additive sharing of s. The MAC component
// hides s·α but is only ever computed here, by the dealer, who knows
// s; parties only ever receive their own Share.
func SharesFromSecret(s field.Elem, alphaShares []field.Elem) ([]Share, error) {
	n := len(alphaShares)
	elems, err := ElemsFromSecret(s, n)
	if err != nil {
		return nil, err
	}
	out := make([]Share, n)
	for i := 0; i < n; i++ {
		out[i] = Share{
			S: elems[i],
			M: alphaShares[i].Mul(s),
		}
	}
	return out, nil
}

// RandomBeaver draws uniform a, b, computes c = a·b, and returns the
// per-party authenticated shares of a, b, and c.
func RandomBeaver(alphaShares []field.Elem) ([]Triple, error) {
	n := len(alphaShares)

	a, err := field.Random()
	if err != nil {
		return nil, err
	}
	b, err := field.Random()
	if err != nil {
		return nil, err
	}
	c := a.Mul(b)

	as, err := SharesFromSecret(a, alphaShares)
	if err != nil {
		return nil, err
	}
	bs, err := SharesFromSecret(b, alphaShares)
	if err != nil {
		return nil, err
	}
	cs, err := SharesFromSecret(c, alphaShares)
	if err != nil {
		return nil, err
	}

	out := make([]Triple, n)
	for i := 0; i < n; i++ {
		out[i] = Triple{A: as[i], B: bs[i], C: cs[i]}
	}
	return out, nil
}
