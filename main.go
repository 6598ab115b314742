package main

import "fleet-monitor/tracking/cmd"

func main() {
	cmd.Execute()
}
