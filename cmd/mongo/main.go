package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/mongo"
)

func main() {
	cli.Main(mongo.Program())
}
