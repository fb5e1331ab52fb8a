// Package aggregates implements the journey progression write path on top of
// the table repos. Every write for an assignment takes the assignment lock,
// then runs in one transaction that locks the assignment row.
package aggregates
