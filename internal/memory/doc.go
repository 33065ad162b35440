// Package memory samples process memory counters and classifies the result
// into an ordered optimization level. Sampling is best-effort and never
// fails; classification is a pure function so the optimization loop can rely
// on it being deterministic.
package memory
