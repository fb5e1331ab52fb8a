// Package aggregates declares the journey progression write boundary and the
// error codes every layer above it speaks.
package aggregates
