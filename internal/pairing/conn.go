package pairing

import "github.com/google/uuid"

// ConnID identifies a registered connection.
type ConnID string

func newConnID() ConnID {
	return ConnID(uuid.NewString())
}

type state uint8

const (
	// stateIdle: registered but not matching. Fresh connections and
	// survivors of a partner-left start here.
	stateIdle state = iota
	stateWaiting
	statePaired
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateWaiting:
		return "waiting"
	case statePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Attributes are the optional compatibility attributes declared on init.
type Attributes struct {
	// Tag describes the connection itself.
	Tag string
	// Filter, when set, is the tag a partner must carry.
	Filter string
}

// Peer describes a transport session at registration time. UserID is empty for
// anonymous sessions.
type Peer struct {
	UserID      string
	DisplayName string
	Sink        Sink
}

type conn struct {
	id      ConnID
	userID  string
	name    string
	attrs   Attributes
	state   state
	partner ConnID
	sink    Sink
}

// compatible reports whether c and p accept each other. The relation is
// symmetric; an absent filter accepts any tag.
func compatible(c, p *conn) bool {
	if c.attrs.Filter != "" && p.attrs.Tag != c.attrs.Filter {
		return false
	}
	if p.attrs.Filter != "" && c.attrs.Tag != p.attrs.Filter {
		return false
	}
	return true
}
