package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/slack"
)

func main() {
	cli.Main(slack.Program())
}
