package main

import "vidzyme/cmd"

func main() {
	cmd.Execute()
}
