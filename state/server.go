package state

import cmap "github.com/orcaman/concurrent-map"

// Server is the per-network view of a linked server (spec §3's Server
// entity). Has no direct girc equivalent — girc is a C2S client and
// never tracks the server tree — so this is grounded on spec §3's own
// attribute list and the SQUIT cascade behavior in the Lifecycles
// paragraph ("SQUIT ... cascades: all child SIDs removed").
type Server struct {
	SID         string
	Name        string
	Description string
	Uplink      string // empty for the root (own) server.
	Children    map[string]struct{}
	Users       map[string]struct{}
	HasEOB      bool
}

func newServer(sid, name string) *Server {
	return &Server{
		SID:      sid,
		Name:     name,
		Children: make(map[string]struct{}),
		Users:    make(map[string]struct{}),
	}
}

// ServerMapping indexes a network's servers by SID.
type ServerMapping struct {
	m cmap.ConcurrentMap
}

func NewServerMapping() *ServerMapping {
	return &ServerMapping{m: cmap.New()}
}

func (m *ServerMapping) Add(s *Server) { m.m.Set(s.SID, s) }

func (m *ServerMapping) Get(sid string) *Server {
	v, ok := m.m.Get(sid)
	if !ok {
		return nil
	}
	return v.(*Server)
}

func (m *ServerMapping) Remove(sid string) { m.m.Remove(sid) }

func (m *ServerMapping) Len() int { return m.m.Count() }

func (m *ServerMapping) Each(fn func(*Server)) {
	for item := range m.m.IterBuffered() {
		fn(item.Val.(*Server))
	}
}

// Cascade returns every SID transitively under sid (sid itself first),
// used to implement the SQUIT cascade invariant in spec §3's
// Lifecycles paragraph.
func (m *ServerMapping) Cascade(sid string) []string {
	var out []string
	var walk func(string)
	walk = func(cur string) {
		out = append(out, cur)
		s := m.Get(cur)
		if s == nil {
			return
		}
		for child := range s.Children {
			walk(child)
		}
	}
	walk(sid)
	return out
}
