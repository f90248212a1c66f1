// Package api defines the public types and interfaces of the appointment
// confirmation engine: the workflow instance model, the fixed step catalogue,
// external events, intent classification results, collaborator contracts and
// the Engine interface itself.
//
// Application code normally imports the root smartsalud package, which
// re-exports everything here and provides engine constructors for the
// supported storage backends.
package api
