// Command contentfeed runs the real-time content aggregation service.
package main

import (
	"github.com/JakeFAU/realtime-content-feed/cmd"
)

func main() {
	cmd.Execute()
}
