// Package port implements host port availability checks for the
// e2e-runner supervisor.
//
// The dev server and the containerized automation server both need a
// host port. Checking it up front turns the OS's generic "address already
// in use" into an error that names the port and the stage that wanted it.
// The check is advisory: the real bind that follows can still lose a race.
package port
