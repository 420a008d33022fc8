package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/outlook"
)

func main() {
	cli.Main(outlook.Program())
}
