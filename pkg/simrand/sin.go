package simrand

import (
	"math"
	"math/big"
)

// Sine and cosine follow fdlibm's k_sin.c, k_cos.c and e_rem_pio2.c, the
// routines browsers use for Math.sin. Every product is wrapped in an explicit
// float64 conversion: Go may fuse an unconverted multiply-add into an FMA,
// and whether it does depends on the target architecture.

const (
	s1 = -1.66666666666666324348e-01
	s2 = 8.33333333332248946124e-03
	s3 = -1.98412698298579493134e-04
	s4 = 2.75573137070700676789e-06
	s5 = -2.50507602534068634195e-08
	s6 = 1.58969099521155010221e-10

	c1 = 4.16666666666666019037e-02
	c2 = -1.38888888888741095749e-03
	c3 = 2.48015872894767294178e-05
	c4 = -2.75573143513906633035e-07
	c5 = 2.08757232129817482790e-09
	c6 = -1.13596475577881948265e-11

	invPio2 = 6.36619772367581382433e-01
	// π/2 split into three 33-bit pieces, each with its tail.
	pio2x1  = 1.57079632673412561417e+00
	pio2x1t = 6.07710050650619224932e-11
	pio2x2  = 6.07710050630396597660e-11
	pio2x2t = 2.02226624879595063154e-21
	pio2x3  = 2.02226624871116645580e-21
	pio2x3t = 8.47842766036889956997e-32

	// High-word thresholds of the argument ranges.
	hiPio4     = 0x3fe921fb
	hi3Pio4    = 0x4002d97c
	hiMedium   = 0x413921fb
	hiTiny     = 0x3e400000
	hiPio2     = 0x3ff921fb
	hiCosSmall = 0x3fd33333
	hiCosLarge = 0x3fe90000

	bigPrec = 384
	piText  = "3.14159265358979323846264338327950288419716939937510582097494459230781640628620899862803482534211706798214808651328230664709384460955058223172535940812848111745028410270193852110555964462294895493038196"
)

var bigPio2 = func() *big.Float {
	pi, _, err := big.ParseFloat(piText, 10, bigPrec, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	return pi.Quo(pi, big.NewFloat(2))
}()

// highWord returns the top 32 bits of x with the sign bit cleared.
func highWord(x float64) uint32 {
	return uint32(math.Float64bits(x)>>32) & 0x7fffffff
}

// Sin returns the sine of x, bit for bit the same on every platform.
func Sin(x float64) float64 {
	if x < 0 {
		return -Sin(-x)
	}
	if highWord(x) <= hiPio4 {
		return kernelSin(x, 0, false)
	}
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return math.NaN()
	}
	n, y0, y1 := remPio2(x)
	switch n & 3 {
	case 0:
		return kernelSin(y0, y1, true)
	case 1:
		return kernelCos(y0, y1)
	case 2:
		return -kernelSin(y0, y1, true)
	default:
		return -kernelCos(y0, y1)
	}
}

// Cos returns the cosine of x, bit for bit the same on every platform.
func Cos(x float64) float64 {
	if x < 0 {
		x = -x
	}
	if highWord(x) <= hiPio4 {
		return kernelCos(x, 0)
	}
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return math.NaN()
	}
	n, y0, y1 := remPio2(x)
	switch n & 3 {
	case 0:
		return kernelCos(y0, y1)
	case 1:
		return -kernelSin(y0, y1, true)
	case 2:
		return -kernelCos(y0, y1)
	default:
		return kernelSin(y0, y1, true)
	}
}

// kernelSin approximates sin on [-π/4, π/4]. y is the tail of x; tail
// reports whether it is meaningful.
func kernelSin(x, y float64, tail bool) float64 {
	if highWord(x) < hiTiny {
		return x
	}
	z := float64(x * x)
	v := float64(z * x)
	r := s2 + float64(z*(s3+float64(z*(s4+float64(z*(s5+float64(z*s6)))))))
	if !tail {
		return x + float64(v*(s1+float64(z*r)))
	}
	return x - ((float64(z*(float64(0.5*y)-float64(v*r))) - y) - float64(v*s1))
}

// kernelCos approximates cos on [-π/4, π/4] with y the tail of x.
func kernelCos(x, y float64) float64 {
	ix := highWord(x)
	if ix < hiTiny {
		return 1
	}
	z := float64(x * x)
	r := float64(z * (c1 + float64(z*(c2+float64(z*(c3+float64(z*(c4+float64(z*(c5+float64(z*c6)))))))))))
	zr := float64(z*r) - float64(x*y)
	if ix < hiCosSmall {
		return 1 - (float64(0.5*z) - zr)
	}
	qx := 0.28125
	if ix <= hiCosLarge {
		qx = math.Float64frombits(uint64(ix-0x00200000) << 32)
	}
	hz := float64(0.5*z) - qx
	a := 1 - qx
	return a - (hz - zr)
}

// remPio2 reduces a finite x > π/4 to y0+y1 in [-π/4, π/4] with
// x = n·π/2 + y0 + y1.
func remPio2(x float64) (n int, y0, y1 float64) {
	ix := highWord(x)
	if ix < hi3Pio4 {
		z := x - pio2x1
		if ix != hiPio2 {
			y0 = z - pio2x1t
			return 1, y0, (z - y0) - pio2x1t
		}
		z -= pio2x2
		y0 = z - pio2x2t
		return 1, y0, (z - y0) - pio2x2t
	}
	if ix > hiMedium {
		return remPio2Large(x)
	}

	n = int(float64(x*invPio2) + 0.5)
	fn := float64(n)
	r := x - float64(fn*pio2x1)
	w := float64(fn * pio2x1t)
	y0 = r - w
	exp := ix >> 20
	if exp-(highWord(y0)>>20&0x7ff) > 16 {
		t := r
		w = float64(fn * pio2x2)
		r = t - w
		w = float64(fn*pio2x2t) - ((t - r) - w)
		y0 = r - w
		if exp-(highWord(y0)>>20&0x7ff) > 49 {
			t = r
			w = float64(fn * pio2x3)
			r = t - w
			w = float64(fn*pio2x3t) - ((t - r) - w)
			y0 = r - w
		}
	}
	return n, y0, (r - y0) - w
}

// remPio2Large reduces arguments beyond 2^19·π/2 exactly in multiprecision
// arithmetic. Only the low two bits of n are ever used.
func remPio2Large(x float64) (n int, y0, y1 float64) {
	xf := new(big.Float).SetPrec(bigPrec).SetFloat64(x)
	q := new(big.Float).SetPrec(bigPrec).Quo(xf, bigPio2)
	q.Add(q, big.NewFloat(0.5))
	qi, _ := q.Int(nil)

	r := new(big.Float).SetPrec(bigPrec).SetInt(qi)
	r.Mul(r, bigPio2)
	r.Sub(xf, r)
	y0, _ = r.Float64()
	tail := new(big.Float).SetPrec(bigPrec).Sub(r, new(big.Float).SetFloat64(y0))
	y1, _ = tail.Float64()

	n = int(new(big.Int).And(qi, big.NewInt(3)).Int64())
	return n, y0, y1
}
