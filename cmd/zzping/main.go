package main

import (
	"os"

	"github.com/m-lab/go/rtx"
)

func main() {
	app := createCliApp()
	rtx.Must(app.Run(os.Args), "%s 运行失败", AppName)
}
