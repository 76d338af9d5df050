// Package ledger defines the append-only, hash-chained event log that is the
// system's source of truth for consent decisions. Events are immutable once
// appended; the consent read model is a projection derived from this log.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"veritas/internal/ledger/hashchain"
	dErrors "veritas/pkg/domain-errors"
)

// ActorType identifies the kind of entity that caused an event.
type ActorType string

const (
	ActorUser      ActorType = "USER"
	ActorApp       ActorType = "APP"
	ActorRegulator ActorType = "REGULATOR"
	ActorSystem    ActorType = "SYSTEM"
)

// IsValid reports whether the actor type is one of the known values.
func (a ActorType) IsValid() bool {
	switch a {
	case ActorUser, ActorApp, ActorRegulator, ActorSystem:
		return true
	}
	return false
}

// EventType tags the payload variant carried by a ledger event.
type EventType string

const (
	EventConsentGranted EventType = "CONSENT_GRANTED"
	EventConsentRevoked EventType = "CONSENT_REVOKED"
	EventConsentExpired EventType = "CONSENT_EXPIRED"
)

// IsValid reports whether the event type is one of the known values.
func (t EventType) IsValid() bool {
	switch t {
	case EventConsentGranted, EventConsentRevoked, EventConsentExpired:
		return true
	}
	return false
}

// PurposeLink binds a processing purpose to the data categories it covers.
type PurposeLink struct {
	PurposeCode    string   `json:"purpose_code"`
	DataCategories []string `json:"data_categories"`
}

// Subject identifies the parties an event payload is about. It is used for
// query filtering and read-side authorization narrowing.
type Subject struct {
	UserID    string
	AppID     string
	ConsentID string
}

// Payload is the tagged variant carried by a ledger event. Each event type
// has its own fixed schema so the ledger stays type safe with one event table.
type Payload interface {
	Type() EventType
	Subject() Subject
	Validate() error
}

// GrantedPayload records a consent grant.
type GrantedPayload struct {
	ConsentID string        `json:"consent_id"`
	UserID    string        `json:"user_id"`
	AppID     string        `json:"app_id"`
	Purposes  []PurposeLink `json:"purposes"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

func (p GrantedPayload) Type() EventType { return EventConsentGranted }

func (p GrantedPayload) Subject() Subject {
	return Subject{UserID: p.UserID, AppID: p.AppID, ConsentID: p.ConsentID}
}

func (p GrantedPayload) Validate() error {
	if p.ConsentID == "" || p.UserID == "" || p.AppID == "" {
		return dErrors.New(dErrors.CodeValidation, "granted payload requires consent, user and app ids")
	}
	if len(p.Purposes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "granted payload requires at least one purpose")
	}
	for _, link := range p.Purposes {
		if link.PurposeCode == "" {
			return dErrors.New(dErrors.CodeValidation, "purpose code must not be empty")
		}
		if len(link.DataCategories) == 0 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("purpose %s has no data categories", link.PurposeCode))
		}
	}
	return nil
}

// RevokedPayload records a consent revocation and its reason.
type RevokedPayload struct {
	ConsentID string `json:"consent_id"`
	UserID    string `json:"user_id"`
	AppID     string `json:"app_id"`
	Reason    string `json:"reason"`
}

func (p RevokedPayload) Type() EventType { return EventConsentRevoked }

func (p RevokedPayload) Subject() Subject {
	return Subject{UserID: p.UserID, AppID: p.AppID, ConsentID: p.ConsentID}
}

func (p RevokedPayload) Validate() error {
	if p.ConsentID == "" || p.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "revoked payload requires consent and user ids")
	}
	return nil
}

// ExpiredPayload records an expiry transition performed by the sweeper.
type ExpiredPayload struct {
	ConsentID string    `json:"consent_id"`
	UserID    string    `json:"user_id"`
	AppID     string    `json:"app_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

func (p ExpiredPayload) Type() EventType { return EventConsentExpired }

func (p ExpiredPayload) Subject() Subject {
	return Subject{UserID: p.UserID, AppID: p.AppID, ConsentID: p.ConsentID}
}

func (p ExpiredPayload) Validate() error {
	if p.ConsentID == "" || p.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "expired payload requires consent and user ids")
	}
	return nil
}

// Event is a single immutable entry in the ledger. Sequence, Timestamp and
// both hashes are assigned by the store at append time, never by callers.
type Event struct {
	ID          string    `json:"event_id"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	ActorType   ActorType `json:"actor_type"`
	ActorID     string    `json:"actor_id"`
	Type        EventType `json:"event_type"`
	Payload     Payload   `json:"event_payload"`
	HashPrev    string    `json:"hash_prev"`
	HashCurrent string    `json:"hash_current"`
}

// canonicalEvent fixes the field order and timestamp encoding used for
// hashing. Re-serializing a stored event must reproduce the exact bytes that
// were hashed at append time, so nothing here may be locale or map ordered.
type canonicalEvent struct {
	Sequence  int64     `json:"sequence"`
	Timestamp string    `json:"timestamp"`
	ActorType ActorType `json:"actor_type"`
	ActorID   string    `json:"actor_id"`
	EventType EventType `json:"event_type"`
	Payload   Payload   `json:"event_payload"`
}

// CanonicalContent returns the deterministic byte serialization of the event
// that is covered by its hash. HashPrev is deliberately excluded here; the
// chain primitive mixes it in separately.
func (e *Event) CanonicalContent() ([]byte, error) {
	content, err := json.Marshal(canonicalEvent{
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorType: e.ActorType,
		ActorID:   e.ActorID,
		EventType: e.Type,
		Payload:   e.Payload,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize event")
	}
	return content, nil
}

// ComputeHash recomputes the event's chain hash from its canonical content
// and stored HashPrev. Stores call this at append time; the verification
// engine calls it again to detect payload corruption.
func (e *Event) ComputeHash() (string, error) {
	content, err := e.CanonicalContent()
	if err != nil {
		return "", err
	}
	return hashchain.Compute(e.HashPrev, content), nil
}

// Clone returns a copy of the event. Payload variants are value types and
// treated as immutable, so a shallow copy is sufficient for read isolation.
func (e *Event) Clone() *Event {
	cp := *e
	return &cp
}

// eventEnvelope mirrors Event with a raw payload for two-phase decoding.
type eventEnvelope struct {
	ID          string          `json:"event_id"`
	Sequence    int64           `json:"sequence"`
	Timestamp   time.Time       `json:"timestamp"`
	ActorType   ActorType       `json:"actor_type"`
	ActorID     string          `json:"actor_id"`
	Type        EventType       `json:"event_type"`
	Payload     json.RawMessage `json:"event_payload"`
	HashPrev    string          `json:"hash_prev"`
	HashCurrent string          `json:"hash_current"`
}

// UnmarshalJSON decodes the payload into the variant selected by event_type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := UnmarshalPayload(env.Type, env.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:          env.ID,
		Sequence:    env.Sequence,
		Timestamp:   env.Timestamp,
		ActorType:   env.ActorType,
		ActorID:     env.ActorID,
		Type:        env.Type,
		Payload:     payload,
		HashPrev:    env.HashPrev,
		HashCurrent: env.HashCurrent,
	}
	return nil
}

// UnmarshalPayload decodes raw payload bytes into the variant for eventType.
func UnmarshalPayload(eventType EventType, data []byte) (Payload, error) {
	switch eventType {
	case EventConsentGranted:
		var p GrantedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed granted payload")
		}
		return p, nil
	case EventConsentRevoked:
		var p RevokedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed revoked payload")
		}
		return p, nil
	case EventConsentExpired:
		var p ExpiredPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed expired payload")
		}
		return p, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown event type: %s", eventType))
	}
}

// Draft is what callers submit to Append. The store assigns identity,
// ordering, time and hashes.
type Draft struct {
	ActorType ActorType
	ActorID   string
	Payload   Payload
}

// Validate enforces draft invariants before the store enters its write section.
func (d Draft) Validate() error {
	if !d.ActorType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid actor type: %s", d.ActorType))
	}
	if d.ActorID == "" {
		return dErrors.New(dErrors.CodeValidation, "actor id must not be empty")
	}
	if d.Payload == nil {
		return dErrors.New(dErrors.CodeValidation, "event payload must not be nil")
	}
	return d.Payload.Validate()
}
