package main

import "github.com/ValentinKolb/evkv/cmd"

func main() {
	cmd.Execute()
}
