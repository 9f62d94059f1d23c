// Package qpso places edge servers with quantum-behaved particle swarm optimisation.
//
// Two variants are provided. Placer keeps a continuous particle per candidate location and
// decodes it to the K largest coordinates, minimising a delay, workload imbalance and
// potential coverage objective. DiscretePlacer keeps particles as K-sets directly and
// maximises the summed composite score of normalised workload and user count.
package qpso
