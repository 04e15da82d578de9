//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package field implements arithmetic over the prime field used by
// the secret-sharing and commitment layers: addition, subtraction,
// multiplication, uniform random sampling, and a fixed little-endian
// 32-byte canonical representation.
package field

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/big"
)

// ByteLen is the size of an element's canonical representation.
const ByteLen = 32

// P is the field modulus: the BLS12-381 scalar field order. Generator
// 7 and little-endian representation are fixed alongside it.
var P, _ = new(big.Int).SetString(
	"52435875175126190479447740508185965837690552500527637822603658699938581184513",
	10)

// Generator is the field's fixed generator, carried for parity with
// the field's defining parameters even though this package never
// needs to exponentiate by it.
const Generator = 7

var errRange = errors.New("field: value out of range")

// Elem is a field element.
type Elem struct {
	v *big.Int
}

// Zero is the additive identity.
func Zero() Elem {
	return Elem{v: new(big.Int)}
}

// New reduces v modulo P and returns the resulting element.
func New(v *big.Int) Elem {
	r := new(big.Int).Mod(v, P)
	return Elem{v: r}
}

// FromUint64 returns the element representing v.
func FromUint64(v uint64) Elem {
	return New(new(big.Int).SetUint64(v))
}

// Random draws a uniformly random element of Fp.
func Random() (Elem, error) {
	v, err := rand.Int(rand.Reader, P)
	if err != nil {
		return Elem{}, err
	}
	return Elem{v: v}, nil
}

func (e Elem) big() *big.Int {
	if e.v == nil {
		return new(big.Int)
	}
	return e.v
}

// Add returns e+o mod P.
func (e Elem) Add(o Elem) Elem {
	return New(new(big.Int).Add(e.big(), o.big()))
}

// Sub returns e-o mod P.
func (e Elem) Sub(o Elem) Elem {
	return New(new(big.Int).Sub(e.big(), o.big()))
}

// Mul returns e*o mod P.
func (e Elem) Mul(o Elem) Elem {
	return New(new(big.Int).Mul(e.big(), o.big()))
}

// Neg returns -e mod P.
func (e Elem) Neg() Elem {
	return New(new(big.Int).Neg(e.big()))
}

// Equal reports whether e and o represent the same field element.
func (e Elem) Equal(o Elem) bool {
	return e.big().Cmp(o.big()) == 0
}

// IsZero reports whether e is the additive identity.
func (e Elem) IsZero() bool {
	return e.big().Sign() == 0
}

// Big returns the element's big.Int representation. The returned
// value must not be mutated.
func (e Elem) Big() *big.Int {
	return e.big()
}

// Bytes returns the element's fixed little-endian 32-byte canonical
// representation.
func (e Elem) Bytes() [ByteLen]byte {
	var out [ByteLen]byte
	be := e.big().Bytes()
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out
}

// FromBytes decodes a little-endian 32-byte canonical representation
// produced by Bytes.
func FromBytes(b [ByteLen]byte) Elem {
	be := make([]byte, ByteLen)
	for i, c := range b {
		be[ByteLen-1-i] = c
	}
	return New(new(big.Int).SetBytes(be))
}

// Uint64 returns the low 64 bits of the element's canonical
// little-endian representation, interpreted as an unsigned integer.
// Callers are expected to only use this for results known to fit in
// 64 bits; there is no overflow detection.
func (e Elem) Uint64() uint64 {
	b := e.Bytes()
	return binary.LittleEndian.Uint64(b[:8])
}

// String returns the element's decimal representation, for debugging.
func (e Elem) String() string {
	return e.big().String()
}
