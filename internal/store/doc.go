// Package store is the repository boundary for jobs, scheduled
// publications, post snapshots and credentials. Two drivers: sqlite
// (durable, used in production) and memory (tests, local development).
package store
