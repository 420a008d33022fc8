package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/gmail"
)

func main() {
	cli.Main(gmail.Program())
}
