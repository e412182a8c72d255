package types

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// SessionID is the backend-assigned, 128-bit session identifier that keys
// the Session Registry. A backend that returns no sessionId is mapped to
// ZeroSessionID, the all-zero sentinel.
type SessionID uuid.UUID

// ZeroSessionID is the sentinel used when a backend's NewSession response
// carries no sessionId.
var ZeroSessionID = SessionID(uuid.Nil)

// String returns the canonical hyphenated representation.
func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

// IsZero reports whether s is the sentinel value.
func (s SessionID) IsZero() bool {
	return s == ZeroSessionID
}

// ParseSessionID parses the leading path segment of a /session/{id}/... URL
// into a SessionID. Returns ErrMalformedSessionID if it does not parse as a
// UUID.
func ParseSessionID(raw string) (SessionID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return SessionID{}, ErrMalformedSessionID
	}
	return SessionID(id), nil
}

// envelope mirrors only as much of the NewSession response shape as is
// needed to locate and rewrite sessionId; everything else in "value" (and
// any sibling top-level fields) passes through untouched via the raw-map
// representation.
type envelope struct {
	Value map[string]json.RawMessage `json:"value"`
}

// ExtractSessionID parses body as shape { value: { sessionId, capabilities } }
// and returns the session id to key the registry by, substituting
// ZeroSessionID when the backend reported none (sessionId null or absent).
// It also returns the id rewritten into the raw response body, leaving
// every other field (capabilities and anything else the backend sent)
// untouched, so the client always sees a concrete sessionId.
func ExtractSessionID(body []byte) (SessionID, []byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return SessionID{}, nil, err
	}
	var parsed envelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SessionID{}, nil, err
	}
	if parsed.Value == nil {
		return SessionID{}, nil, ErrMalformedSessionID
	}

	id := ZeroSessionID
	if raw, ok := parsed.Value["sessionId"]; ok {
		var rawStr *string
		if err := json.Unmarshal(raw, &rawStr); err != nil {
			return SessionID{}, nil, err
		}
		if rawStr != nil && strings.TrimSpace(*rawStr) != "" {
			parsedID, err := uuid.Parse(*rawStr)
			if err != nil {
				return SessionID{}, nil, err
			}
			id = SessionID(parsedID)
		}
	}

	rewritten, err := json.Marshal(id.String())
	if err != nil {
		return SessionID{}, nil, err
	}
	parsed.Value["sessionId"] = rewritten

	value, err := json.Marshal(parsed.Value)
	if err != nil {
		return SessionID{}, nil, err
	}
	top["value"] = value

	out, err := json.Marshal(top)
	if err != nil {
		return SessionID{}, nil, err
	}
	return id, out, nil
}
