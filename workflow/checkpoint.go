package workflow

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Checkpoint is a durable snapshot of one workflow instance's execution state,
// sufficient to resume or deterministically replay from that point. Grounded on the
// teacher's graph/checkpoint.go Checkpoint[S], generalized with CurrentNodeID,
// RetryCount and LoopIterationCounts. The remaining budget is not part of the
// checkpoint; it is held only by the engine's budget guard.
type Checkpoint[S any] struct {
	WorkflowID string
	Version    int
	State      S

	CurrentNodeID       string
	RetryCount          int
	LoopIterationCounts map[string]int

	Frontier       []WorkItem[S]
	RNGSeed        int64
	RecordedIOs    []RecordedIO
	IdempotencyKey string
	Timestamp      time.Time
	Label          string
}

// computeIdempotencyKey hashes (workflowID, version, sorted frontier by OrderKey,
// JSON(state)) into a stable sha256 digest, so re-committing the same tick is
// detected as a duplicate rather than silently double-applied (spec §8 invariant 3:
// "idempotent replay"). Unchanged in formula from the teacher's
// graph/checkpoint.go computeIdempotencyKey.
func computeIdempotencyKey[S any](workflowID string, version int, items []WorkItem[S], state S) (string, error) {
	h := sha256.New()
	h.Write([]byte(workflowID))

	versionBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(versionBytes, uint64(version))
	h.Write(versionBytes)

	sorted := make([]WorkItem[S], len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderKey < sorted[j].OrderKey })
	for _, item := range sorted {
		h.Write([]byte(item.NodeID))
		okBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(okBytes, item.OrderKey)
		h.Write(okBytes)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	h.Write(stateJSON)

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// computeFingerprint hashes (stepTypeID, selected input field values) into the
// ledger's cache key, per spec §4.3: "the caller chooses which state fields
// contribute; the ledger does not interpret them." fields is already the
// caller-selected, already-marshaled subset.
func computeFingerprint(stepTypeID string, fields map[string]any) (string, error) {
	h := sha256.New()
	h.Write([]byte(stepTypeID))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		v, err := json.Marshal(fields[k])
		if err != nil {
			return "", err
		}
		h.Write(v)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
