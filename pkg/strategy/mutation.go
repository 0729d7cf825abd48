package strategy

import "math/rand"

// Mutate replaces n distinct, randomly chosen genes with fresh uniform draws
// (modifies in place). The new values do not depend on the old ones.
func Mutate(c Chromosome, n int, rng *rand.Rand) {
	if n <= 0 || len(c) == 0 {
		return
	}
	if n >= len(c) {
		for i := range c {
			c[i] = rng.Float64()
		}
		return
	}
	for _, i := range rng.Perm(len(c))[:n] {
		c[i] = rng.Float64()
	}
}

// Crossover returns a child taking genes [0, point) from a and the rest from
// b, for a random cut point.
func Crossover(a, b Chromosome, rng *rand.Rand) Chromosome {
	child := a.Clone()
	if len(a) < 2 || len(b) != len(a) {
		return child
	}
	point := 1 + rng.Intn(len(a)-1)
	copy(child[point:], b[point:])
	return child
}

// breed produces one mutated offspring of two parents.
func breed(a, b Chromosome, params Params, rng *rand.Rand) Chromosome {
	child := Crossover(a, b, rng)
	Mutate(child, params.MutationGenes, rng)
	return child
}
