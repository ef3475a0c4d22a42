package main

import "fuel-fraud-alerts/internal/cli"

func main() {
	cli.Execute()
}
