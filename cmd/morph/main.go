package main

import (
	"go.brendoncarroll.net/star"

	"morphasm.org/morph/morphcmd"
)

func main() {
	star.Main(morphcmd.Root())
}
