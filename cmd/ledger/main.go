package main

import "money_transfer/cmd/ledger/commands"

func main() {
	commands.Execute()
}
