package realtime

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// userLocks serializes work per username without keeping a mutex per user
// alive forever. Two usernames may share a stripe; that only costs some
// contention, never correctness.
type userLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *userLocks) lock(username string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
