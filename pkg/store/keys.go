package store

import "encoding/binary"

// EncodeCFKey prefixes key with its column family name, the same
// "prefix-per-concern" convention as the teacher's KeyEncoder (PrefixTable,
// PrefixRow, PrefixIndex, ...), generalized to an arbitrary column family
// set instead of five hardcoded constants.
func EncodeCFKey(cf ColumnFamily, key []byte) []byte {
	out := make([]byte, 0, len(cf)+1+len(key))
	out = append(out, []byte(cf)...)
	out = append(out, ':')
	out = append(out, key...)
	return out
}

// CFPrefix returns the byte prefix identifying cf, used to bound an
// iterator to exactly that column family.
func CFPrefix(cf ColumnFamily) []byte {
	return append([]byte(cf), ':')
}

// prefixUpperBound returns the smallest key greater than every key sharing
// prefix, i.e. the exclusive upper bound for a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	// All 0xff: no finite upper bound exists, the scan is open-ended.
	return nil
}

// EncodeVersionKey builds the newest-first version key for a tuple: the
// tuple's own key followed by the bitwise complement of its creating XID
// encoded big-endian, so a forward byte-order scan over keys sharing the
// tuple prefix visits versions in descending XID order (spec §4.2).
func EncodeVersionKey(tupleKey []byte, xid uint64) []byte {
	out := make([]byte, len(tupleKey)+8)
	copy(out, tupleKey)
	binary.BigEndian.PutUint64(out[len(tupleKey):], ^xid)
	return out
}

// DecodeVersionKey splits a version key back into its tuple key and
// creating XID.
func DecodeVersionKey(versionKey []byte) (tupleKey []byte, xid uint64) {
	n := len(versionKey) - 8
	tupleKey = versionKey[:n]
	xid = ^binary.BigEndian.Uint64(versionKey[n:])
	return
}

// VersionKeyPrefix returns the prefix every version key for tupleKey
// shares, bounding a scan to just that tuple's versions.
func VersionKeyPrefix(tupleKey []byte) []byte {
	return tupleKey
}
