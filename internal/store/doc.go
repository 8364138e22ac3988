// Package store defines interfaces for persistence dependencies (content
// records, run logs, access keys). Implementations live in other packages;
// this package must not import database drivers or concrete clients.
package store
