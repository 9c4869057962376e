// Package remote fetches blob contents from the authoritative origin through
// the getfiles streaming sub-protocol.
//
// Requests are pipelined in batches: one line per blob made of the 40 char
// revision id immediately followed by the file path, then a single flush.
// Responses come back strictly in request order as a decimal length line
// followed by exactly that many compressed bytes. There is no correlation id;
// order is the only thing tying a response to its request.
package remote
