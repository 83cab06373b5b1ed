// Package store is the persistence port: durable CRUD over users, alerts,
// and positions plus the atomic position adjustment used by BUY/SELL.
//
// Two implementations exist. Postgres (pgx pool) is the production backend;
// Memory serves tests and local runs without a database. Both enforce
// username uniqueness, cascade user deletion to alerts and positions, and
// serialize conflicting position updates.
package store
