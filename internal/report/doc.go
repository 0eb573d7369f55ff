// Package report describes the outcome of one migration run.
package report
