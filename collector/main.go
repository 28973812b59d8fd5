package main

import "github.com/derktes/pi-ir/collector/collector"

func main() {
	collector.Execute()
}
