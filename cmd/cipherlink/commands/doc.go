// Package commands defines the cipherlink CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local identity and pre-keys
//   - fingerprint    Print the identity fingerprint
//   - bundle         Export the public key bundle as JSON
//   - rotate         Rotate the signed pre-key and top up one-time pre-keys
//   - add-peer       Import and verify a peer's bundle
//   - start-session  Establish an X3DH session with a peer
//   - end-session    Discard the session with a peer
//   - send           Encrypt a message into a packet
//   - recv           Decrypt a packet from a peer
//   - demo           Run a two-party conversation in memory
//
// # Implementation
//
// Flags are bound to viper, so every option can also come from a
// CIPHERLINK_* environment variable or from config.yaml in the home
// directory. Commands that touch stored keys open the stores through
// app.NewWire and close them when they return. Packets and bundles are
// exchanged as JSON files; moving them between peers is left to the user.
package commands
