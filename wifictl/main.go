// Command wifictl runs the adaptive transmit-power control experiment: the
// simulation, the control process, or both.
package main

import "github.com/sarchlab/wifictl/wifictl/cmd"

func main() {
	cmd.Execute()
}
