package main

import "github.com/kamusis/embr/cmd"

func main() {
	cmd.Execute()
}
