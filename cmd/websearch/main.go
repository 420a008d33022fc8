package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/websearch"
)

func main() {
	cli.Main(websearch.Program())
}
