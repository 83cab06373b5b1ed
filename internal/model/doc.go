// Package model defines the shared domain types: durable records
// (users, alerts, positions) and in-memory values (quotes, trigger events).
//
// Types here are plain data with no behavior beyond parsing helpers, so
// every other package can depend on model without import cycles.
package model
