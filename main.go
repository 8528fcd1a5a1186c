package main

import "genie/cmd"

func main() {
	cmd.Execute()
}
