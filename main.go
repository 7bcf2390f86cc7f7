package main

import "github.com/Quidge/modemcheck/cmd"

func main() {
	cmd.Execute()
}
