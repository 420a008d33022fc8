package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/notion"
)

func main() {
	cli.Main(notion.Program())
}
