package mvcc

import "github.com/kasuganosora/hybridpg/pkg/errs"

// VersionKind tags what kind of change a version record represents (spec
// §3: "Kind ∈ {Insert, Update, Delete}"). Delete versions carry a tombstone
// payload (empty) rather than real row bytes.
type VersionKind byte

const (
	KindInsert VersionKind = 1
	KindUpdate VersionKind = 2
	KindDelete VersionKind = 3
)

// EncodeVersionValue frames a version record's on-disk value as the header
// byte (Kind) followed by the payload bytes, per spec §6's persisted state
// layout ("Version record value = header byte (Kind) ‖ payload bytes").
func EncodeVersionValue(kind VersionKind, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(kind)
	copy(out[1:], payload)
	return out
}

// DecodeVersionValue splits a version record's raw store value back into
// its Kind and payload.
func DecodeVersionValue(raw []byte) (VersionKind, []byte, error) {
	if len(raw) < 1 {
		return 0, nil, &errs.SerializationError{Cause: errShortVersionValue}
	}
	return VersionKind(raw[0]), raw[1:], nil
}

var errShortVersionValue = &shortVersionValueError{}

type shortVersionValueError struct{}

func (*shortVersionValueError) Error() string { return "version value shorter than header byte" }
