package main

import "cliptransfer/cmd"

func main() {
	cmd.Execute()
}
