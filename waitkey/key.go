// Package waitkey provides a structural-key waiter registry correlating
// asynchronous protocol replies with the in-flight requests that are
// awaiting them.
package waitkey

import "fmt"

// Namespace groups related discriminant shapes. Namespaces include every
// message code that expects a correlated reply, plus a handful of
// synthetic names for connection-establishment handshakes that have no
// single message code of their own.
type Namespace string

// Synthetic namespaces used across the peer and distributed managers.
const (
	SolicitedPeerConnection        Namespace = "SolicitedPeerConnection"
	SolicitedDistributedConnection Namespace = "SolicitedDistributedConnection"
	ChildDepthMessage              Namespace = "ChildDepthMessage"
	IndirectConnection             Namespace = "IndirectConnection"
	Login                          Namespace = "Login"
	GetPeerAddress                 Namespace = "GetPeerAddress"
	IncomingTransfer               Namespace = "IncomingTransfer"
)

// Key is a structural, comparable identifier for a single outstanding
// wait. Two Keys with equal Namespace and Discriminants are the same key;
// Go's struct/slice equality would work except slices aren't comparable,
// so Discriminants are joined into one string at construction time,
// keeping Key itself a plain comparable struct usable directly as a map
// key.
type Key struct {
	Namespace     Namespace
	discriminants string
}

// New builds a Key from a namespace and an ordered list of discriminant
// values. Discriminants are formatted with %v and joined with a
// separator that cannot appear in a formatted value's typical String()
// output in this codebase (usernames, tokens); collisions are possible in
// principle for adversarial input but not for this protocol's field
// shapes (usernames, integer tokens).
func New(ns Namespace, discriminants ...any) Key {
	s := ""
	for i, d := range discriminants {
		if i > 0 {
			s += "\x1f"
		}
		s += fmt.Sprintf("%v", d)
	}
	return Key{Namespace: ns, discriminants: s}
}

// String returns a human-readable representation, useful in diagnostics.
func (k Key) String() string {
	if k.discriminants == "" {
		return string(k.Namespace)
	}
	return fmt.Sprintf("%s(%s)", k.Namespace, k.discriminants)
}
