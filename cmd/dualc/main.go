// Command dualc compiles operation descriptors into execution plans and
// runs them on the fast or general backend.
//
//	dualc compile rotate.yaml -o rotate.dplan
//	dualc run rotate.dplan --in x=21
//	dualc inspect rotate.dplan
//	dualc verify
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	err := newRootCmd().Execute()
	// PersistentPostRunE is skipped when a command fails.
	if app != nil {
		_ = app.close()
	}
	if err != nil {
		os.Exit(1)
	}
}
