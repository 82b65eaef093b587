// Package deliverysync bridges the external download queue into request
// rows: each pass maps queue buckets onto delivery states and persists only
// the differences, so running it twice against the same snapshot is a no-op.
package deliverysync
