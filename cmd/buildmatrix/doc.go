// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the buildmatrix command line interface.
//
// Every command handler receives the App composition root and builds the
// runtime pieces it needs (workflow, runner, provisioner, artifact store)
// from the loaded configuration.
package cmd
