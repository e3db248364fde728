// Package httpapi exposes billing over HTTP: reconciliation triggers,
// per-account status, the two-phase charge flow, trials, payment-method
// onboarding and the operator diagnostics.
//
// Every JSON response is wrapped as {"data": ...} or {"error": {"code", "message"}}.
// Diagnostics also render as plain-text tables with ?format=table.
package httpapi
