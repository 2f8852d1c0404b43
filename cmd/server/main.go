package main

import (
	"os"

	"github.com/yusuftnc/qchat/internal/app"
)

// @title           qchat gateway
// @version         1.0
// @description     Chat and QnA contract served in front of Ollama.
// @BasePath        /ollama/v1

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-KEY

func main() {
	os.Exit(app.RunServer())
}
