package main

import "github.com/pyramidtools/pyramid/cmd"

func main() {
	cmd.Execute()
}
