package main

import "lansync/cmd/lansync/command"

func main() {
	command.Execute()
}
