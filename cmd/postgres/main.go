package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/postgres"
)

func main() {
	cli.Main(postgres.Program())
}
