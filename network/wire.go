//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package network

import (
	"encoding/binary"
	"errors"

	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/commitment"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/share"
)

var bo = binary.BigEndian

var errTruncated = errors.New("network: truncated wire message")

// encodeMessage serializes a Message for transport over a SecureConn,
// length-prefixing the variable-size Cid and Payload fields the same
// way attest.go's marshal/unmarshal frame a tss.Message.
func encodeMessage(msg Message) []byte {
	cid := []byte(msg.Cid)
	buf := make([]byte, 0, 1+4+len(cid)+2*field.ByteLen+field.ByteLen+
		len(commitment.Hash{})+len(commitment.Hash{})+field.ByteLen+commitment.SaltLen+4+len(msg.Payload))

	buf = append(buf, byte(msg.Kind))
	buf = appendUint32Prefixed(buf, cid)

	sBytes := msg.Share.S.Bytes()
	mBytes := msg.Share.M.Bytes()
	buf = append(buf, sBytes[:]...)
	buf = append(buf, mBytes[:]...)

	eBytes := msg.Elem.Bytes()
	buf = append(buf, eBytes[:]...)

	buf = append(buf, msg.Hash[:]...)

	buf = append(buf, msg.Proof.Hash[:]...)
	pvBytes := msg.Proof.Value.Bytes()
	buf = append(buf, pvBytes[:]...)
	buf = append(buf, msg.Proof.Salt[:]...)

	buf = appendUint32Prefixed(buf, msg.Payload)
	return buf
}

func appendUint32Prefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	bo.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

// decodeMessage is the inverse of encodeMessage.
func decodeMessage(buf []byte) (Message, error) {
	var msg Message
	if len(buf) < 1+4 {
		return msg, errTruncated
	}
	msg.Kind = Kind(buf[0])
	buf = buf[1:]

	cid, buf, err := readUint32Prefixed(buf)
	if err != nil {
		return msg, err
	}
	msg.Cid = circuit.CirId(cid)

	var sBytes, mBytes, eBytes [field.ByteLen]byte
	if len(buf) < 2*field.ByteLen {
		return msg, errTruncated
	}
	copy(sBytes[:], buf[:field.ByteLen])
	copy(mBytes[:], buf[field.ByteLen:2*field.ByteLen])
	buf = buf[2*field.ByteLen:]
	msg.Share = share.Share{S: field.FromBytes(sBytes), M: field.FromBytes(mBytes)}

	if len(buf) < field.ByteLen {
		return msg, errTruncated
	}
	copy(eBytes[:], buf[:field.ByteLen])
	buf = buf[field.ByteLen:]
	msg.Elem = field.FromBytes(eBytes)

	if len(buf) < len(msg.Hash) {
		return msg, errTruncated
	}
	copy(msg.Hash[:], buf[:len(msg.Hash)])
	buf = buf[len(msg.Hash):]

	if len(buf) < len(msg.Proof.Hash) {
		return msg, errTruncated
	}
	copy(msg.Proof.Hash[:], buf[:len(msg.Proof.Hash)])
	buf = buf[len(msg.Proof.Hash):]

	var pvBytes [field.ByteLen]byte
	if len(buf) < field.ByteLen {
		return msg, errTruncated
	}
	copy(pvBytes[:], buf[:field.ByteLen])
	buf = buf[field.ByteLen:]
	msg.Proof.Value = field.FromBytes(pvBytes)

	if len(buf) < len(msg.Proof.Salt) {
		return msg, errTruncated
	}
	copy(msg.Proof.Salt[:], buf[:len(msg.Proof.Salt)])
	buf = buf[len(msg.Proof.Salt):]

	payload, _, err := readUint32Prefixed(buf)
	if err != nil {
		return msg, err
	}
	msg.Payload = payload

	return msg, nil
}

func readUint32Prefixed(buf []byte) (data, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, errTruncated
	}
	n := int(bo.Uint32(buf))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, errTruncated
	}
	return buf[:n], buf[n:], nil
}
