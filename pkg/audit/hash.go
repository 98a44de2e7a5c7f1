package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"lexsign/custodian/pkg/records"
)

// Canonical returns the serialization an event hash is computed over: a JSON
// array of eventId, occurredAtUtc (RFC 3339, UTC), eventType,
// signingFileId, actorUserId, actorType, ip, userAgent, success, metadata
// and prevEventHash. Absent optional fields are null. Map keys are sorted.
func Canonical(e *records.AuditEvent) ([]byte, error) {
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}

	fields := []any{
		e.EventID,
		e.OccurredAtUTC.UTC().Format(time.RFC3339Nano),
		e.EventType,
		nullable(e.SigningFileID),
		nullable(e.ActorUserID),
		nullable(e.ActorType),
		nullable(e.IP),
		nullable(e.UserAgent),
		e.Success,
		metadata,
		nullable(e.PrevEventHash),
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize audit event %s: %w", e.EventID, err)
	}
	return data, nil
}

// ComputeHash returns the hex SHA-256 of the canonical serialization.
func ComputeHash(e *records.AuditEvent) (string, error) {
	data, err := Canonical(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalizeMetadata round-trips metadata through JSON so that the value
// hashed at write time is the value read back at verify time (numbers as
// json.Number, structs as maps).
func normalizeMetadata(m map[string]any) (map[string]any, []byte, error) {
	if len(m) == 0 {
		return nil, nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata is not serializable: %w", err)
	}
	out, err := decodeMetadata(data)
	if err != nil {
		return nil, nil, err
	}
	return out, data, nil
}

func decodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
