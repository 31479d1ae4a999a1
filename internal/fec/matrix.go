package fec

import "fmt"

// GF(2^8) arithmetic with the 0x11d primitive polynomial — the field shared
// by zfec and github.com/klauspost/reedsolomon. Only the matrix construction
// lives here; all bulk shard math is done by the reedsolomon encoder.

var (
	gfExp [510]byte
	gfLog [256]int
)

func init() {
	x := 1
	for i := range 255 {
		gfExp[i] = byte(x)
		gfExp[i+255] = byte(x)
		gfLog[x] = i
		x <<= 1
		if x&0x100 != 0 {
			x ^= 0x11d
		}
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[gfLog[a]+gfLog[b]]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return gfExp[gfLog[a]+255-gfLog[b]]
}

// parityMatrix builds the parity rows of the zfec systematic generator
// matrix for a [total, required] code. zfec derives them from an
// n x k Vandermonde matrix over the points {0, 1, g, g^2, ...}: the top
// k x k block is inverted and the bottom n-k rows are multiplied by the
// inverse, so that the full generator is [I; P] and any k rows remain
// independent. The returned rows feed reedsolomon.WithCustomMatrix.
func parityMatrix(required, total int) ([][]byte, error) {
	k, n := required, total
	if k < 1 || n <= k || n > 256 {
		return nil, fmt.Errorf("fec: invalid matrix dimensions k=%d n=%d", k, n)
	}

	vdm := make([][]byte, n)
	for r := range vdm {
		vdm[r] = make([]byte, k)
	}
	vdm[0][0] = 1
	for r := 0; r < n-1; r++ {
		for c := range k {
			vdm[r+1][c] = gfExp[(r*c)%255]
		}
	}

	inv, err := invertMatrix(vdm[:k])
	if err != nil {
		return nil, fmt.Errorf("fec: vandermonde inversion: %w", err)
	}

	parity := make([][]byte, n-k)
	for i := range parity {
		row := make([]byte, k)
		for c := range k {
			var acc byte
			for j := range k {
				acc ^= gfMul(vdm[k+i][j], inv[j][c])
			}
			row[c] = acc
		}
		parity[i] = row
	}
	return parity, nil
}

// invertMatrix returns the inverse of a square matrix over GF(2^8) by
// Gauss-Jordan elimination. The input is not modified.
func invertMatrix(m [][]byte) ([][]byte, error) {
	k := len(m)
	work := make([][]byte, k)
	inv := make([][]byte, k)
	for i := range k {
		work[i] = append([]byte(nil), m[i]...)
		inv[i] = make([]byte, k)
		inv[i][i] = 1
	}

	for col := range k {
		pivot := -1
		for r := col; r < k; r++ {
			if work[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			return nil, fmt.Errorf("singular matrix at column %d", col)
		}
		work[col], work[pivot] = work[pivot], work[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		p := work[col][col]
		for c := range k {
			work[col][c] = gfDiv(work[col][c], p)
			inv[col][c] = gfDiv(inv[col][c], p)
		}

		for r := range k {
			if r == col || work[r][col] == 0 {
				continue
			}
			f := work[r][col]
			for c := range k {
				work[r][c] ^= gfMul(f, work[col][c])
				inv[r][c] ^= gfMul(f, inv[col][c])
			}
		}
	}
	return inv, nil
}
