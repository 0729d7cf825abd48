package strategy

import "math/rand"

func init() {
	Register("elitist", func() Strategy { return &ElitistStrategy{} })
}

// ElitistStrategy keeps the single best chromosome and breeds the rest of the
// next generation from uniformly chosen pairs of the top Params.Parents.
type ElitistStrategy struct{}

func (s *ElitistStrategy) Name() string { return "elitist" }

func (s *ElitistStrategy) Initialize(rng *rand.Rand, popSize, length int) []Chromosome {
	return RandomPopulation(rng, popSize, length)
}

func (s *ElitistStrategy) Evolve(
	population []Chromosome,
	fitnesses []float64,
	params Params,
	rng *rand.Rand,
) []Chromosome {
	n := len(population)
	if n == 0 {
		return nil
	}
	ranked := Rank(fitnesses)

	k := params.Parents
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	parents := ranked[:k]

	next := make([]Chromosome, 0, n)
	next = append(next, population[ranked[0]].Clone())

	for len(next) < n {
		a := population[parents[rng.Intn(k)]]
		b := population[parents[rng.Intn(k)]]
		next = append(next, breed(a, b, params, rng))
	}
	return next
}
