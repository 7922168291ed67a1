// Command credflow runs the credential workflow service and offers
// one-shot issuance, verification and key generation.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
