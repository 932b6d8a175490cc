package engine

import "encoding/binary"

// encodePK renders a signed 64-bit primary key as an order-preserving
// 8-byte big-endian tuple key: flipping the sign bit maps the signed range
// onto an unsigned range that sorts identically, so a byte-wise key
// comparison (which the record store's ordered KV engine always uses)
// agrees with the key's numeric ordering. This tuple key doubles as the
// LMI's RecordLocator (spec §3: "the encoded position used to fetch the
// latest visible version") — it never changes across a row's updates, only
// the version suffix appended by store.EncodeVersionKey does.
func encodePK(pk int64) []byte {
	u := uint64(pk) ^ (1 << 63)
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, u)
	return out
}

func decodePK(b []byte) int64 {
	u := binary.BigEndian.Uint64(b)
	return int64(u ^ (1 << 63))
}
