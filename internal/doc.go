// Package internal holds crypto-random identifier and code helpers
// shared by the engine and the reference gateway. Not part of the public
// API.
package internal
