package connection

import (
	"sync"

	"github.com/srg/plantmon/internal/link"
)

// session makes Close idempotent. Timeouts, link loss and Stop can each
// decide to tear the same session down; the transport sees one close.
type session struct {
	link.Session
	once sync.Once
	err  error
}

func newSession(s link.Session) *session {
	return &session{Session: s}
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.err = s.Session.Close()
	})
	return s.err
}
