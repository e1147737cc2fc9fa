// Command flowsim is a discrete-event flow-level simulator for 3D-parallel
// (tensor/pipeline/data) distributed training.
package main

import "github.com/flowsim/flowsim/cmd/flowsim/cmd"

func main() {
	cmd.Execute()
}
