package main

import "github.com/nextlevelbuilder/roomcast/cmd"

func main() {
	cmd.Execute()
}
