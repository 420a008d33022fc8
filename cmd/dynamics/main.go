package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/dynamics"
)

func main() {
	cli.Main(dynamics.Program())
}
