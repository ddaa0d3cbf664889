// Command cmsdetector labels websites with the CMS that serves them.
package main

import "github.com/JakeFAU/cms-detector/cmd"

func main() {
	cmd.Execute()
}
