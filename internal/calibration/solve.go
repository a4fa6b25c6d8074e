package calibration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// pivotEpsilon is the smallest pivot magnitude elimination will divide by.
const pivotEpsilon = 1e-10

// solve returns X such that A·X = B using Gaussian elimination with partial
// pivoting. A is square; every column of B is solved from the same
// elimination. Neither argument is modified.
func solve(a, b mat.Matrix) (*mat.Dense, error) {
	n, _ := a.Dims()
	_, k := b.Dims()

	m := mat.DenseCopyOf(a)
	x := mat.DenseCopyOf(b)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m.At(r, col)) > math.Abs(m.At(pivot, col)) {
				pivot = r
			}
		}
		if math.Abs(m.At(pivot, col)) < pivotEpsilon {
			return nil, ErrSingularSystem
		}
		if pivot != col {
			swapRows(m, pivot, col)
			swapRows(x, pivot, col)
		}

		for r := col + 1; r < n; r++ {
			f := m.At(r, col) / m.At(col, col)
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				m.Set(r, c, m.At(r, c)-f*m.At(col, c))
			}
			for c := 0; c < k; c++ {
				x.Set(r, c, x.At(r, c)-f*x.At(col, c))
			}
		}
	}

	for row := n - 1; row >= 0; row-- {
		for c := 0; c < k; c++ {
			sum := x.At(row, c)
			for j := row + 1; j < n; j++ {
				sum -= m.At(row, j) * x.At(j, c)
			}
			x.Set(row, c, sum/m.At(row, row))
		}
	}

	return x, nil
}

func swapRows(m *mat.Dense, i, j int) {
	ri, rj := m.RawRowView(i), m.RawRowView(j)
	for c := range ri {
		ri[c], rj[c] = rj[c], ri[c]
	}
}
