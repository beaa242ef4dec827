// Package reconcile holds the decision logic of the sync engine: how an
// incoming contact or event record is matched to a local record and what
// update, if any, it produces. Functions here are free of I/O except through
// the small lookup interfaces callers supply, so the same rules run against
// Postgres in production and in-memory fakes in tests.
package reconcile
