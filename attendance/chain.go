package attendance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the prev_hash of a worker's first punch.
const GenesisHash = "GENESIS"

// TimestampLayout is the canonical, fixed-width UTC form used for hashing
// and storage. Fixed width keeps lexical and chronological order equal.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// CanonicalTimestamp normalises t to UTC with nanosecond precision.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseCanonicalTimestamp is the inverse of CanonicalTimestamp.
func ParseCanonicalTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// ComputeHash returns hex(SHA-256(worker ∥ timestamp ∥ kind ∥ prev)).
func ComputeHash(worker WorkerID, ts time.Time, kind PunchKind, prev string) string {
	h := sha256.New()
	h.Write([]byte(worker))
	h.Write([]byte(CanonicalTimestamp(ts)))
	h.Write([]byte(kind))
	h.Write([]byte(prev))
	return hex.EncodeToString(h.Sum(nil))
}

// ChainReport is the result of walking a worker's chain.
type ChainReport struct {
	WorkerID WorkerID
	Length   int
	Head     string
	Valid    bool
	Broken   *IntegrityError
}

// VerifyPunches walks punches (Seq order) and checks every link. start is
// the hash the first punch must point at.
func VerifyPunches(worker WorkerID, punches []Punch, start string) ChainReport {
	report := ChainReport{WorkerID: worker, Length: len(punches), Head: start, Valid: true}
	prev := start
	for i, p := range punches {
		if i > 0 && p.Seq != punches[i-1].Seq+1 {
			report.fail(p, "", "", fmt.Sprintf("sequence gap after %d", punches[i-1].Seq))
			return report
		}
		if p.PrevHash != prev {
			report.fail(p, prev, p.PrevHash, "prev_hash does not match previous link")
			return report
		}
		expected := ComputeHash(p.WorkerID, p.Timestamp, p.Kind, p.PrevHash)
		if p.SelfHash != expected {
			report.fail(p, expected, p.SelfHash, "self_hash does not match punch contents")
			return report
		}
		prev = p.SelfHash
	}
	report.Head = prev
	return report
}

func (r *ChainReport) fail(p Punch, expected, actual, reason string) {
	r.Valid = false
	r.Broken = &IntegrityError{
		WorkerID: r.WorkerID,
		PunchID:  p.ID,
		Seq:      p.Seq,
		Expected: expected,
		Actual:   actual,
		Reason:   reason,
	}
}
