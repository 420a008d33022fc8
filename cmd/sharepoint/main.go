package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/sharepoint"
)

func main() {
	cli.Main(sharepoint.Program())
}
