package channel

import "math"

// filterTableSize is the number of filters a packet can select with its filter byte.
const filterTableSize = 256

// filterPowersOfTen is the number of leading coarse filters (1e-8 .. 1e7).
const filterPowersOfTen = 16

// filterTable holds the step multipliers of the adaptive-delta codec. The first entries are powers of ten
// for large jumps; the rest follow 1 - sin(90°·i/240), giving fine steps near zero.
var filterTable = buildFilterTable()

func buildFilterTable() [filterTableSize]float32 {
	var table [filterTableSize]float32
	for i := 0; i < filterPowersOfTen; i++ {
		table[i] = float32(math.Pow(10, float64(i-8)))
	}
	fine := filterTableSize - filterPowersOfTen
	for i := 0; i < fine; i++ {
		angle := 90.0 * float64(i) / float64(fine)
		table[filterPowersOfTen+i] = float32(1.0 - math.Sin(angle*math.Pi/180.0))
	}
	return table
}
