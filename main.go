package main

import "livewatch/cmd"

func main() {
	cmd.Execute()
}
