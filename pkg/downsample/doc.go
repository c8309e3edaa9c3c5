/*
Package downsample reduces oversized measurement batches to a target
cardinality for visualization without corrupting their statistical meaning.

Three strategies are available:

  - uniform: fixed-stride index selection
  - importance: keep the points whose neighborhood deltas contribute most
    to the visible shape of the series
  - adaptive (default): endpoints + a uniform backbone + an importance
    topping, followed by a mean-compensation pass

The compensation pass exists because stride+importance sampling can
systematically bias the visible mean when spikes are over-represented by the
importance half: after sampling, if the sampled responseTime mean drifts more
than 5% from the original, a handful of unselected points closest to the
original mean are spliced back in.

Results are memoized in a bounded LRU keyed by a cheap structural fingerprint
of the input batch plus the configuration. The fingerprint samples the batch
(length, first, last, middle point) rather than hashing every point; it is
intentionally not collision-proof.
*/
package downsample
