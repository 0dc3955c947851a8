// Package fletcher16 computes the Fletcher-16 checksum used to validate
// the persisted configuration blob (§6, §9: "Configuration binary
// compatibility"). No example in the reference corpus implements this
// specific checksum, and the algorithm is fixed by the wire format, so it
// is hand-rolled here rather than pulled from a generic hash library.
package fletcher16

// Sum computes the Fletcher-16 checksum of data: two 8-bit running sums,
// one accumulating bytes and one accumulating the first sum, each modulo
// 255, packed into the high/low bytes of the result.
func Sum(data []byte) uint16 {
	var sum1, sum2 uint16 = 0, 0
	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	return sum2<<8 | sum1
}
