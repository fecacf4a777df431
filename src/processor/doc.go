// Package processor contains sample Processor implementations for the
// iteration engine: a running average, an asynchronous Jacobi solver and a
// distributed Langevin Monte Carlo estimator.
//
// Processors ignore any (index, value) pair whose index they do not know, so a
// malformed or foreign message can never corrupt their state.
package processor
