package main

import "github.com/texerai/maveric2/cmd"

func main() {
	cmd.Execute()
}
