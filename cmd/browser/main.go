package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/browser"
)

func main() {
	cli.Main(browser.Program())
}
