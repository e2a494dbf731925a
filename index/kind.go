package index

import (
	"fmt"
	"strings"

	"github.com/viant/sqlite-rag/index/bruteforce"
	"github.com/viant/sqlite-rag/index/cover"
)

// Kind names an index implementation.
type Kind string

const (
	KindAuto  Kind = "auto"
	KindBrute Kind = "brute"
	KindCover Kind = "cover"
)

// Auto-selection thresholds: the tree pays off only for large, tall datasets.
const (
	autoMinRows      = 4000
	autoMinDim       = 64
	autoMinRowsToDim = 16
)

// ParseKind parses an index kind, defaulting an empty value to KindAuto.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindBrute, KindCover:
		return k, nil
	default:
		return "", fmt.Errorf("index: unknown kind %q", s)
	}
}

// Resolve maps KindAuto to a concrete kind for n vectors of dimension dim.
func (k Kind) Resolve(n, dim int) Kind {
	if k != KindAuto && k != "" {
		return k
	}
	if n >= autoMinRows && dim >= autoMinDim && n/dim >= autoMinRowsToDim {
		return KindCover
	}
	return KindBrute
}

// New returns an empty index of the given concrete kind.
func New(k Kind) Index {
	if k == KindCover {
		return &cover.Index{}
	}
	return &bruteforce.Index{}
}

// Decode restores an index from a blob produced by MarshalBinary, detecting
// its kind from the blob prefix.
func Decode(data []byte) (Index, Kind, error) {
	kind := KindBrute
	if cover.IsBlob(data) {
		kind = KindCover
	}
	idx := New(kind)
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, "", err
	}
	return idx, kind, nil
}
