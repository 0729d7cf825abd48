package strategy

import "math/rand"

const tournamentSize = 5

func init() {
	Register("tournament", func() Strategy { return &TournamentStrategy{} })
}

// TournamentStrategy picks each parent as the winner of a small tournament
// among the top Params.Parents, which keeps weaker parents in play more often
// than uniform choice does.
type TournamentStrategy struct{}

func (s *TournamentStrategy) Name() string { return "tournament" }

func (s *TournamentStrategy) Initialize(rng *rand.Rand, popSize, length int) []Chromosome {
	return RandomPopulation(rng, popSize, length)
}

func (s *TournamentStrategy) Evolve(
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
	if k < 1 || k > n {
		k = n
	}
	pool := ranked[:k]

	next := make([]Chromosome, 0, n)
	next = append(next, population[ranked[0]].Clone())

	for len(next) < n {
		a := tournamentSelect(population, fitnesses, pool, rng)
		b := tournamentSelect(population, fitnesses, pool, rng)
		next = append(next, breed(a, b, params, rng))
	}
	return next
}

func tournamentSelect(pop []Chromosome, fitnesses []float64, pool []int, rng *rand.Rand) Chromosome {
	bestIdx := pool[rng.Intn(len(pool))]
	bestFit := fitnesses[bestIdx]

	for i := 1; i < tournamentSize; i++ {
		idx := pool[rng.Intn(len(pool))]
		if fitnesses[idx] > bestFit {
			bestIdx = idx
			bestFit = fitnesses[idx]
		}
	}

	return pop[bestIdx]
}
