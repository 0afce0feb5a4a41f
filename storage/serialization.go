package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/ragpilot/core"
)

const (
	runRecordVersion       uint64 = 1
	selectionRecordVersion uint64 = 1
)

// runRecord is the flattened, serializable form of a core.PipelineRun.
type runRecord struct {
	ID         string
	ProjectID  int64
	FileName   string
	StageKind  uint64
	StageAt    uint64
	Mock       bool
	StartedAt  int64
	FinishedAt int64
	Results    []resultRecord
	HasErr     bool
	ErrStage   uint64
	ErrMessage string
	ErrStatus  int64
}

type resultRecord struct {
	Stage       uint64
	CompletedAt int64
	Payload     string // JSON object, "" when absent
}

// MarshalRun encodes a run for the journal.
func MarshalRun(run *core.PipelineRun) ([]byte, error) {
	rec, err := toRunRecord(run)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, rec.size())
	rec.marshal(buf)
	return buf, nil
}

// UnmarshalRun decodes a run written by MarshalRun.
func UnmarshalRun(data []byte) (*core.PipelineRun, error) {
	rec, err := unmarshalRunRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return rec.toRun()
}

// MarshalSelection encodes the session selection.
func MarshalSelection(s *core.Selection) []byte {
	id := int64(s.ProjectID)
	updated := toMicros(s.UpdatedAt)
	size := varint.Uint64.Size(selectionRecordVersion) +
		varint.Int64.Size(id) +
		ord.String.Size(s.ProjectName) +
		varint.Int64.Size(updated)

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(selectionRecordVersion, buf)
	n += varint.Int64.Marshal(id, buf[n:])
	n += ord.String.Marshal(s.ProjectName, buf[n:])
	varint.Int64.Marshal(updated, buf[n:])
	return buf
}

// UnmarshalSelection decodes a selection written by MarshalSelection.
func UnmarshalSelection(data []byte) (*core.Selection, error) {
	version, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if version != selectionRecordVersion {
		return nil, fmt.Errorf("%w: selection v%d", ErrUnsupportedVersion, version)
	}

	var (
		s       core.Selection
		id      int64
		updated int64
		m       int
	)
	if id, m, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	n += m
	if s.ProjectName, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	n += m
	if updated, _, err = varint.Int64.Unmarshal(data[n:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	s.ProjectID = core.ProjectID(id)
	s.UpdatedAt = fromMicros(updated)
	return &s, nil
}

func toRunRecord(run *core.PipelineRun) (*runRecord, error) {
	if run == nil || run.ID == "" {
		return nil, fmt.Errorf("%w: missing run id", ErrInvalidRun)
	}

	rec := &runRecord{
		ID:         run.ID,
		ProjectID:  int64(run.ProjectID),
		FileName:   run.FileName,
		StageKind:  uint64(run.Stage.Kind),
		StageAt:    uint64(run.Stage.At),
		Mock:       run.Mock,
		StartedAt:  toMicros(run.StartedAt),
		FinishedAt: toMicros(run.FinishedAt),
	}

	// Stage order keeps the encoding deterministic.
	for _, stage := range core.WorkingStages {
		result := run.Results[stage]
		if result == nil {
			continue
		}
		payload := ""
		if result.Payload != nil {
			b, err := json.Marshal(result.Payload)
			if err != nil {
				return nil, fmt.Errorf("%w: %s payload: %w", ErrSerializationFailed, stage, err)
			}
			payload = string(b)
		}
		rec.Results = append(rec.Results, resultRecord{
			Stage:       uint64(stage),
			CompletedAt: toMicros(result.CompletedAt),
			Payload:     payload,
		})
	}

	if run.Err != nil {
		rec.HasErr = true
		rec.ErrStage = uint64(run.Err.Stage)
		rec.ErrMessage = run.Err.Message
		rec.ErrStatus = int64(run.Err.Status)
	}
	return rec, nil
}

func (r *runRecord) toRun() (*core.PipelineRun, error) {
	kind, err := stageKind(r.StageKind)
	if err != nil {
		return nil, err
	}
	at, err := stageKind(r.StageAt)
	if err != nil {
		return nil, err
	}

	run := core.NewPipelineRun(r.ID, core.ProjectID(r.ProjectID), r.FileName)
	run.Stage = core.Stage{Kind: kind, At: at}
	run.Mock = r.Mock
	run.StartedAt = fromMicros(r.StartedAt)
	run.FinishedAt = fromMicros(r.FinishedAt)

	for _, res := range r.Results {
		stage, err := stageKind(res.Stage)
		if err != nil {
			return nil, err
		}
		result := &core.StageResult{Stage: stage, CompletedAt: fromMicros(res.CompletedAt)}
		if res.Payload != "" {
			if err := json.Unmarshal([]byte(res.Payload), &result.Payload); err != nil {
				return nil, fmt.Errorf("%w: %s payload: %w", ErrSerializationFailed, stage, err)
			}
		}
		run.Results[stage] = result
	}

	if r.HasErr {
		stage, err := stageKind(r.ErrStage)
		if err != nil {
			return nil, err
		}
		run.Err = &core.StageError{Stage: stage, Message: r.ErrMessage, Status: int(r.ErrStatus)}
	}
	return run, nil
}

func (r *runRecord) size() int {
	size := varint.Uint64.Size(runRecordVersion) +
		ord.String.Size(r.ID) +
		varint.Int64.Size(r.ProjectID) +
		ord.String.Size(r.FileName) +
		varint.Uint64.Size(r.StageKind) +
		varint.Uint64.Size(r.StageAt) +
		ord.Bool.Size(r.Mock) +
		varint.Int64.Size(r.StartedAt) +
		varint.Int64.Size(r.FinishedAt) +
		varint.Uint64.Size(uint64(len(r.Results)))
	for _, res := range r.Results {
		size += varint.Uint64.Size(res.Stage) +
			varint.Int64.Size(res.CompletedAt) +
			ord.String.Size(res.Payload)
	}
	size += ord.Bool.Size(r.HasErr)
	if r.HasErr {
		size += varint.Uint64.Size(r.ErrStage) +
			ord.String.Size(r.ErrMessage) +
			varint.Int64.Size(r.ErrStatus)
	}
	return size
}

func (r *runRecord) marshal(bs []byte) int {
	n := varint.Uint64.Marshal(runRecordVersion, bs)
	n += ord.String.Marshal(r.ID, bs[n:])
	n += varint.Int64.Marshal(r.ProjectID, bs[n:])
	n += ord.String.Marshal(r.FileName, bs[n:])
	n += varint.Uint64.Marshal(r.StageKind, bs[n:])
	n += varint.Uint64.Marshal(r.StageAt, bs[n:])
	n += ord.Bool.Marshal(r.Mock, bs[n:])
	n += varint.Int64.Marshal(r.StartedAt, bs[n:])
	n += varint.Int64.Marshal(r.FinishedAt, bs[n:])
	n += varint.Uint64.Marshal(uint64(len(r.Results)), bs[n:])
	for _, res := range r.Results {
		n += varint.Uint64.Marshal(res.Stage, bs[n:])
		n += varint.Int64.Marshal(res.CompletedAt, bs[n:])
		n += ord.String.Marshal(res.Payload, bs[n:])
	}
	n += ord.Bool.Marshal(r.HasErr, bs[n:])
	if r.HasErr {
		n += varint.Uint64.Marshal(r.ErrStage, bs[n:])
		n += ord.String.Marshal(r.ErrMessage, bs[n:])
		n += varint.Int64.Marshal(r.ErrStatus, bs[n:])
	}
	return n
}

// recordReader walks a buffer, remembering the first error.
type recordReader struct {
	bs  []byte
	n   int
	err error
}

func (rr *recordReader) readUint() (v uint64) {
	if rr.err != nil {
		return 0
	}
	var m int
	v, m, rr.err = varint.Uint64.Unmarshal(rr.bs[rr.n:])
	rr.n += m
	return v
}

func (rr *recordReader) readInt() (v int64) {
	if rr.err != nil {
		return 0
	}
	var m int
	v, m, rr.err = varint.Int64.Unmarshal(rr.bs[rr.n:])
	rr.n += m
	return v
}

func (rr *recordReader) readString() (v string) {
	if rr.err != nil {
		return ""
	}
	var m int
	v, m, rr.err = ord.String.Unmarshal(rr.bs[rr.n:])
	rr.n += m
	return v
}

func (rr *recordReader) readBool() (v bool) {
	if rr.err != nil {
		return false
	}
	var m int
	v, m, rr.err = ord.Bool.Unmarshal(rr.bs[rr.n:])
	rr.n += m
	return v
}

// maxResults bounds the result count read from a record; a run has at most
// one result per working stage.
const maxResults = 8

func unmarshalRunRecord(data []byte) (*runRecord, error) {
	rr := &recordReader{bs: data}
	version := rr.readUint()
	if rr.err != nil {
		return nil, rr.err
	}
	if version != runRecordVersion {
		return nil, fmt.Errorf("%w: run v%d", ErrUnsupportedVersion, version)
	}

	rec := &runRecord{
		ID:         rr.readString(),
		ProjectID:  rr.readInt(),
		FileName:   rr.readString(),
		StageKind:  rr.readUint(),
		StageAt:    rr.readUint(),
		Mock:       rr.readBool(),
		StartedAt:  rr.readInt(),
		FinishedAt: rr.readInt(),
	}
	count := rr.readUint()
	if rr.err == nil && count > maxResults {
		return nil, fmt.Errorf("result count %d out of range", count)
	}
	for i := uint64(0); i < count && rr.err == nil; i++ {
		rec.Results = append(rec.Results, resultRecord{
			Stage:       rr.readUint(),
			CompletedAt: rr.readInt(),
			Payload:     rr.readString(),
		})
	}
	rec.HasErr = rr.readBool()
	if rec.HasErr {
		rec.ErrStage = rr.readUint()
		rec.ErrMessage = rr.readString()
		rec.ErrStatus = rr.readInt()
	}
	if rr.err != nil {
		return nil, rr.err
	}
	return rec, nil
}

func stageKind(v uint64) (core.StageKind, error) {
	if v > uint64(core.StageFailed) {
		return 0, fmt.Errorf("%w: stage %d out of range", ErrSerializationFailed, v)
	}
	return core.StageKind(v), nil
}

// Timestamps are stored as Unix microseconds; zero times stay zero.
func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}
