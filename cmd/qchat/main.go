package main

import (
	"os"

	"github.com/yusuftnc/qchat/internal/app"
)

func main() {
	os.Exit(app.RunClient())
}
