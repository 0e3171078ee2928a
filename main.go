// ./main.go
package main

import (
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/cmd"
)

func main() {
	cmd.Execute()
}
