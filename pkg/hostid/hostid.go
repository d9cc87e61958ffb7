// Package hostid derives a stable, non-reversible identifier for this machine.
package hostid

import (
	"log"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

const appID = "signal-executor"

// ID returns an app-scoped machine id, or a random one when the OS exposes none.
func ID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		log.Printf("⚠️ machine id unavailable, using a random instance id: %v", err)
		return uuid.NewString()
	}
	return id
}

// Short returns the first 8 characters of id.
func Short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
