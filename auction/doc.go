// Package auction computes the outcome of one batch: a deterministic,
// manipulation-resistant execution ordering over the revealed orders and a
// single uniform clearing price per asset pair.
//
// The shuffle seed is the XOR of every valid reveal's secret. Secrets are
// committed before any of them is visible, so no participant can choose a
// secret as a function of the others'; with k of n participants colluding,
// their influence over the ordering is bounded by k/n. The ordering breaks
// ties and rations the marginal price level. It never affects the price:
// price fairness comes from the uniform clearing price alone.
package auction
