package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/mysql"
)

func main() {
	cli.Main(mysql.Program())
}
