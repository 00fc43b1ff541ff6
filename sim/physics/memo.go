package physics

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// solveKey hashes everything the field solution depends on: the exciter's
// parameters and, per reflector in order, its name, position, gain, feed
// impedance, and effective reflection coefficient. Mode changes flow into
// the key through the coefficient, so no explicit invalidation hook is
// needed.
func (e *Engine) solveKey(reflectors []Reflector, gammas []complex128) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeF := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	writeC := func(c complex128) {
		writeF(real(c))
		writeF(imag(c))
	}
	writeName := func(name string) {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}

	writeName(e.exciter.Name())
	writeF(e.exciter.Position().X)
	writeF(e.exciter.Position().Y)
	writeF(e.exciter.Position().Z)
	writeF(e.exciter.PowerMW())
	writeF(e.exciter.Gain())
	writeF(e.exciter.Frequency())

	for i, r := range reflectors {
		writeName(r.Name())
		pos := r.Position()
		writeF(pos.X)
		writeF(pos.Y)
		writeF(pos.Z)
		writeF(r.Gain())
		writeC(r.Impedance())
		writeC(gammas[i])
	}
	return h.Sum64()
}
