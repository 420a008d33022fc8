package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/sqlite"
)

func main() {
	cli.Main(sqlite.Program())
}
