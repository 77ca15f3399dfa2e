package main

import "github.com/tristendillon/bundlefix/cmd"

func main() {
	cmd.Execute()
}
