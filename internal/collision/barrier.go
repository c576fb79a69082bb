package collision

import "math"

// Barrier is the log barrier b(s) = -(s - dhat)^2 ln(s / dhat) on the gap
// s, zero for s >= dhat and +Inf for s <= 0.
func Barrier(s, dhat float64) float64 {
	if s >= dhat {
		return 0
	}
	if s <= 0 {
		return math.Inf(1)
	}
	d := s - dhat
	return -d * d * math.Log(s/dhat)
}

// BarrierDerivatives returns b, db/ds and d2b/ds2.
func BarrierDerivatives(s, dhat float64) (b, db, ddb float64) {
	if s >= dhat {
		return 0, 0, 0
	}
	if s <= 0 {
		return math.Inf(1), math.Inf(-1), math.Inf(1)
	}
	d := s - dhat
	l := math.Log(s / dhat)
	b = -d * d * l
	db = -2*d*l - d*d/s
	ddb = -2*l - 4*d/s + d*d/(s*s)
	return b, db, ddb
}

// Friction smoothing f0 and its derivative f1 with threshold eps on the
// tangential displacement norm y.
func FrictionF0(y, eps float64) float64 {
	if y >= eps {
		return y
	}
	return -y*y*y/(3*eps*eps) + y*y/eps + eps/3
}

func FrictionF1(y, eps float64) float64 {
	if y >= eps {
		return 1
	}
	return -y*y/(eps*eps) + 2*y/eps
}
