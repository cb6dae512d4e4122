package main

import "github.com/Tyrowin/termchat/cmd/termchat/cmd"

func main() {
	cmd.Execute()
}
