package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/ragpilot/core"
)

const (
	runRecordPrefix  = "runrec"
	runTimePrefix    = "runtim"
	runProjectPrefix = "runprj"
	selectionKey     = "session:selection"
)

// makeRunKey generates the primary key of a run.
func makeRunKey(id string) []byte {
	return []byte(runRecordPrefix + ":" + id)
}

// makeRunTimeKey generates the key of the global start-time index.
// Layout: prefix ":" startedAt(8) id
func makeRunTimeKey(startedAt time.Time, id string) []byte {
	prefix := []byte(runTimePrefix + ":")
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(startedAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makeRunProjectKey generates the key of the per-project start-time index.
// Layout: prefix ":" projectID(8) startedAt(8) id
func makeRunProjectKey(projectID core.ProjectID, startedAt time.Time, id string) []byte {
	prefix := makePartialRunProjectKey(projectID)
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(startedAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makePartialRunProjectKey generates the prefix shared by a project's runs.
func makePartialRunProjectKey(projectID core.ProjectID) []byte {
	prefix := []byte(runProjectPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(projectID))
	return buf
}

// prefixEnd returns the smallest key greater than every key with prefix.
// Used as the seek start of reverse iteration.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix), len(prefix)+1)
	copy(end, prefix)
	return append(end, 0xFF)
}
