package main

import "github.com/surendra-ayasya/ImageSerachImplementation/cmd"

func main() {
	cmd.Execute()
}
