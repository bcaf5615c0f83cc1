// Command wayback-etl collects Wayback Machine snapshot metadata.
package main

import "github.com/JakeFAU/wayback-etl/cmd"

func main() {
	cmd.Execute()
}
