// Package analysis summarises the per-frame series of a finished run.
//
//   - [Summarize]: mean, spread and range of a series
//   - [Spectrum]: one-sided amplitude spectrum of a uniformly sampled series
//   - [DominantFrequency]: strongest non-zero frequency, e.g. the swing of
//     a pendulum preset
//   - [EnergyDrift]: relative change of the total energy over a run
package analysis
