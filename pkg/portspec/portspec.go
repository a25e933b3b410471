// Package portspec implements the compact "27015/udp,34197/udp" wire format
// used to carry a game's port set across process boundaries: as a cloud tag
// value, inside a server record, and in the container-daemon command line.
package portspec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Protocol is a transport-layer protocol a game port is exposed over.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	default:
		return "", fmt.Errorf("portspec: unknown protocol %q", s)
	}
}

// Spec is a single port/protocol pair, e.g. 27015/udp.
type Spec struct {
	Port     uint16
	Protocol Protocol
}

// Key is the wire-format key for this port, e.g. "27015/udp".
func (s Spec) Key() string {
	return fmt.Sprintf("%d/%s", s.Port, s.Protocol)
}

func (s Spec) String() string { return s.Key() }

// ParseKey parses a single "<port>/<proto>" token.
func ParseKey(tok string) (Spec, error) {
	parts := strings.SplitN(tok, "/", 2)
	if len(parts) != 2 {
		return Spec{}, fmt.Errorf("portspec: malformed port token %q", tok)
	}
	n, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Spec{}, fmt.Errorf("portspec: bad port in %q: %w", tok, err)
	}
	proto, err := ParseProtocol(parts[1])
	if err != nil {
		return Spec{}, fmt.Errorf("portspec: %w", err)
	}
	return Spec{Port: uint16(n), Protocol: proto}, nil
}

// Set is a server's full port set, keyed by wire-format key so it matches
// the shape of model.Server.Ports (map["27015/udp"] = 27015).
type Set map[string]Spec

// Serialize produces the sorted, comma-separated tag value for a Set. The
// ordering is lexicographic over the wire key so Serialize is a pure
// function of the set's contents, making Parse(Serialize(s)) stable
// regardless of map iteration order.
func (s Set) Serialize() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// Parse decodes a "27015/udp,34197/udp" tag value into a Set. An empty
// string parses to an empty, non-nil Set.
func Parse(tag string) (Set, error) {
	out := Set{}
	if tag == "" {
		return out, nil
	}
	for _, tok := range strings.Split(tag, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		spec, err := ParseKey(tok)
		if err != nil {
			return nil, err
		}
		out[spec.Key()] = spec
	}
	return out, nil
}

// FromGamePorts builds a Set from a game descriptor's declared ports.
func FromGamePorts(specs []Spec) Set {
	out := make(Set, len(specs))
	for _, s := range specs {
		out[s.Key()] = s
	}
	return out
}
