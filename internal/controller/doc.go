// Package controller implements the coordination core for a fleet of
// remote marker-tracking components: connection supervision over persistent
// websocket sessions, request/response correlation, the phased tracking
// startup, and the steady-state relay of detector observations into pose
// solvers.
package controller
