package cmd

import (
	"fmt"
	"io"
)

const banner = `
  __                                       _   
 / _|_  ____ _  ___ ___ ___  _   _ _ __ | |_ 
| |_\ \/ / _` + "`" + ` |/ __/ __/ _ \| | | | '_ \| __|
|  _|>  < (_| | (_| (_| (_) | |_| | | | | |_ 
|_| /_/\_\__,_|\___\___\___/ \__,_|_| |_|\__|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Firefox Accounts client - Version %s\x1b[0m\n\n", Version)
}
