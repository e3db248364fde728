// Package httpserver runs an http.Handler until a context is cancelled and
// provides a JSON readiness handler over named dependency checks.
package httpserver
