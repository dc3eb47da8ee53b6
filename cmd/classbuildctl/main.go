// Command classbuildctl administers a classbuild database: migrations, roster
// seeding, manual reconciliation and build inspection.
package main

import (
	"os"
)

func main() {
	if err := NewCmdRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
