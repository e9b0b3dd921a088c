// Package main is the trapsim command.
package main

import "github.com/sarchlab/trapsim/trapsim/cmd"

func main() {
	cmd.Execute()
}
