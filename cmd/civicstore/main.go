// Command civicstore is the operator CLI of the municipal portal's record
// store access layer.
package main

import "github.com/mesh-intelligence/civicstore/internal/cli"

func main() {
	cli.Execute()
}
