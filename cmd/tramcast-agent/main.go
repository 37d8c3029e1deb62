package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/tramcast/tramcast/cmd/tramcast-agent/app"
)

func main() {
	app.NewApp().Run()
}
