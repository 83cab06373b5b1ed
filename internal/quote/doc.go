// Package quote is the external quote source port. Client fetches the
// current price of a symbol from a chart-style JSON HTTP endpoint with
// retry and jittered backoff; LoadSymbols reads the startup symbol
// universe file.
package quote
