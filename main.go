package main

import "github.com/cwaldvogel/vsbisect/cmd"

func main() {
	cmd.Execute()
}
