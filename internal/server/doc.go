// Package server implements the line-oriented TCP front end. Each
// connection gets a session: a read loop that executes commands in arrival
// order and a write loop draining one outbound queue shared with the
// trigger dispatcher.
package server
