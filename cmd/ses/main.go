package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/ses"
)

func main() {
	cli.Main(ses.Program())
}
