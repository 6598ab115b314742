package domain

const (
	knotsPerMps = 1.943844
	kphPerKnot  = 1.852
)

func KnotsFromMps(v float64) float64 { return v * knotsPerMps }

func KphFromKnots(v float64) float64 { return v * kphPerKnot }

func KnotsFromKph(v float64) float64 { return v / kphPerKnot }
