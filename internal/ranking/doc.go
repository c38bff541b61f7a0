// Package ranking implements the weighted multi-factor scoring that orders
// establishment search results.
//
// Three factors contribute to a composite score, each scaled to [0, 100]
// before weighting:
//
//   - distance: linear falloff from the search origin to the radius edge
//   - quality: average rating blended with review volume
//   - subscription: flat point contribution per paid tier
//
// Weights always sum to 1.0 and are selected per request from the search
// context (sort preference and movement velocity). The quality and
// subscription factors are stable between recomputation cycles and are
// precomputed by the rank cache updater as a static rank; the distance factor
// depends on the caller's location and is always computed at query time.
//
// All functions in this package are pure: identical inputs produce identical
// outputs, and no function reads the clock or any global state.
package ranking
