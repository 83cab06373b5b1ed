// Package protocol implements the newline-delimited wire protocol as a pure
// bidirectional codec: ParseCommand turns a client line into a typed Command,
// and every Response renders itself back to a line. The package performs no
// I/O so the codec is unit-testable without a socket.
//
// Direction tokens are accepted case-insensitively on input and always
// emitted canonically ("Above"/"Below"). Prices are emitted with two decimal
// places.
package protocol
