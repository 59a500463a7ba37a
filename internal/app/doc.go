// Package app wires application dependencies for the CLI.
//
// It opens the sealed key store, the session store and the peer bundle
// directory under Config.Home, builds the services on top of them and
// exposes the result through Wire.
package app
