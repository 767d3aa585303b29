package main

import "github.com/KaramelBytes/declinescan/cmd"

func main() {
	cmd.Execute()
}
