package strategy

import (
	"fmt"
	"math/rand"
	"sort"
)

// Chromosome is a fixed-length vector of genes in [0, 1].
type Chromosome []float64

// Clone returns a copy of the chromosome.
func (c Chromosome) Clone() Chromosome {
	out := make(Chromosome, len(c))
	copy(out, c)
	return out
}

// Params controls how a strategy breeds the next generation.
type Params struct {
	Parents       int // number of top-ranked members allowed to breed
	MutationGenes int // genes replaced in every offspring
}

// Strategy defines an evolutionary strategy for evolving chromosomes.
//
// Evolve must return a population of the same size whose first member is the
// best member of the input population, unmodified.
type Strategy interface {
	Name() string
	Initialize(rng *rand.Rand, popSize, length int) []Chromosome
	Evolve(population []Chromosome, fitnesses []float64, params Params, rng *rand.Rand) []Chromosome
}

var registry = map[string]func() Strategy{}

// Register adds a strategy constructor to the registry.
func Register(name string, constructor func() Strategy) {
	registry[name] = constructor
}

// Get returns a strategy by name.
func Get(name string) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
	return ctor(), nil
}

// Names returns all registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RandomPopulation draws every gene uniformly from [0, 1).
func RandomPopulation(rng *rand.Rand, popSize, length int) []Chromosome {
	pop := make([]Chromosome, popSize)
	for i := range pop {
		c := make(Chromosome, length)
		for j := range c {
			c[j] = rng.Float64()
		}
		pop[i] = c
	}
	return pop
}

// Rank returns population indices ordered by fitness, best first. Ties keep
// population order.
func Rank(fitnesses []float64) []int {
	indices := make([]int, len(fitnesses))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return fitnesses[indices[a]] > fitnesses[indices[b]]
	})
	return indices
}
