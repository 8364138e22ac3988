// Package feed defines the canonical content model and the contracts shared
// by adapters, the aggregation engine, storage and the query layer.
package feed
