// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/buildmatrix/buildmatrix/cmd/buildmatrix"

func main() {
	cmd.Execute()
}
