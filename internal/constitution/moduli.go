package constitution

// Units.
const (
	Pa  = 1.0
	KPa = 1e3
	MPa = 1e6
	GPa = 1e9
)

// ElasticModuli are the Lamé parameters of an isotropic material.
type ElasticModuli struct {
	Mu     float64
	Lambda float64
}

// YoungsPoisson converts Young's modulus and Poisson's ratio to Lamé parameters.
func YoungsPoisson(e, nu float64) ElasticModuli {
	return ElasticModuli{
		Mu:     e / (2 * (1 + nu)),
		Lambda: e * nu / ((1 + nu) * (1 - 2*nu)),
	}
}

func Lame(mu, lambda float64) ElasticModuli {
	return ElasticModuli{Mu: mu, Lambda: lambda}
}

// DefaultModuli is a soft rubber-like material.
func DefaultModuli() ElasticModuli {
	return YoungsPoisson(120*KPa, 0.49)
}

const DefaultMassDensity = 1e3
