// Package permissions implements the capability bitset granted to apps and
// its persisted per-app store.
package permissions

import "strings"

// Permission is a bitset of capability grants.
type Permission uint32

const (
	RFReceive Permission = 1 << iota
	RFTransmit
	GPIORead
	GPIOWrite
	StorageRead
	StorageWrite
	UICreate
	Network
	System

	// None is the empty grant, the default for unknown apps.
	None Permission = 0

	// AnyRF matches either RF capability; used by the sandbox access
	// heuristic with any-bit semantics.
	AnyRF = RFReceive | RFTransmit
)

// permissionNames maps wire names to bits in stable declaration order. The
// order is the canonical String() order.
var permissionNames = []struct {
	name string
	bit  Permission
}{
	{"rf.receive", RFReceive},
	{"rf.transmit", RFTransmit},
	{"gpio.read", GPIORead},
	{"gpio.write", GPIOWrite},
	{"storage.read", StorageRead},
	{"storage.write", StorageWrite},
	{"ui.create", UICreate},
	{"network", Network},
	{"system", System},
}

// Parse tokenizes a comma-separated permission list, trimming whitespace
// around each token. Unrecognized tokens are silently ignored so manifests
// written against a newer catalogue still install.
func Parse(csv string) Permission {
	var p Permission
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		for _, pn := range permissionNames {
			if pn.name == tok {
				p |= pn.bit
				break
			}
		}
	}
	return p
}

// String is the inverse of Parse: a comma-joined list of the recognized
// names present in p, in stable order, one name per set bit.
func (p Permission) String() string {
	var names []string
	for _, pn := range permissionNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// Has reports whether any of the bits in required are present. Callers that
// need "all of" semantics must check bits individually; see Store.Check.
func (p Permission) Has(required Permission) bool {
	return p&required != 0
}

// Names returns the full wire vocabulary in canonical order.
func Names() []string {
	names := make([]string, len(permissionNames))
	for i, pn := range permissionNames {
		names[i] = pn.name
	}
	return names
}
