package bruteforce

import (
	"encoding/binary"
	"errors"
	"math"
)

const headerSize = 8

// Encode serializes ids and vectors of the given dimension.
func Encode(ids []string, vecs [][]float32, dim int) []byte {
	if dim == 0 || len(vecs) == 0 {
		return make([]byte, headerSize)
	}
	size := headerSize
	for _, id := range ids {
		size += 4 + len(id) + 4*dim
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(ids)))
	for idx, id := range ids {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(id)))
		out = append(out, id...)
		for _, v := range vecs[idx][:dim] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) ([]string, [][]float32, error) {
	if len(data) < headerSize {
		return nil, nil, errors.New("bruteforce: invalid data")
	}
	off := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(data[off : off+4]); off += 4; return v }
	dim := int(getU32())
	n := int(getU32())
	if n > 0 && (dim == 0 || n > (len(data)-headerSize)/(4+4*dim)) {
		return nil, nil, errors.New("bruteforce: truncated")
	}
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for idx := 0; idx < n; idx++ {
		if off+4 > len(data) {
			return nil, nil, errors.New("bruteforce: truncated")
		}
		idlen := int(getU32())
		if idlen < 0 || off+idlen > len(data) {
			return nil, nil, errors.New("bruteforce: truncated id")
		}
		ids[idx] = string(data[off : off+idlen])
		off += idlen
		if off+4*dim > len(data) {
			return nil, nil, errors.New("bruteforce: truncated vec")
		}
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(getU32())
		}
		vecs[idx] = vec
	}
	if off != len(data) {
		return nil, nil, errors.New("bruteforce: trailing bytes")
	}
	return ids, vecs, nil
}
