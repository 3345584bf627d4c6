package login

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/fxaccount/key"
)

// StateVersion is the version written into every serialized state.
const StateVersion = 3

type jsonState struct {
	Version          *int            `json:"version"`
	Email            string          `json:"email"`
	UID              string          `json:"uid"`
	Verified         bool            `json:"verified"`
	QuickStretchedPW string          `json:"quickStretchedPW,omitempty"`
	UnwrapKB         string          `json:"unwrapkB,omitempty"`
	SessionToken     string          `json:"sessionToken,omitempty"`
	KA               string          `json:"kA,omitempty"`
	KB               string          `json:"kB,omitempty"`
	KeyPair          json.RawMessage `json:"keyPair,omitempty"`
	Certificate      string          `json:"certificate,omitempty"`
}

func (b base) toJSON() jsonState {
	v := StateVersion
	return jsonState{Version: &v, Email: b.email, UID: b.uid, Verified: b.verified}
}

func (s session) fill(js *jsonState) error {
	kp, err := json.Marshal(s.keyPair)
	if err != nil {
		return fmt.Errorf("marshaling keypair: %w", err)
	}
	js.SessionToken = s.sessionToken.Hex()
	js.KA = s.kA.Hex()
	js.KB = s.kB.Hex()
	js.KeyPair = kp
	return nil
}

func (s *Engaged) MarshalJSON() ([]byte, error) {
	js := s.toJSON()
	js.QuickStretchedPW = s.quickStretchedPW.Hex()
	js.UnwrapKB = s.unwrapKB.Hex()
	return json.Marshal(js)
}

func (s *Cohabiting) MarshalJSON() ([]byte, error) {
	js := s.toJSON()
	if err := s.fill(&js); err != nil {
		return nil, err
	}
	return json.Marshal(js)
}

func (s *Married) MarshalJSON() ([]byte, error) {
	js := s.toJSON()
	if err := s.fill(&js); err != nil {
		return nil, err
	}
	js.Certificate = s.certificate
	return json.Marshal(js)
}

func (s *Separated) MarshalJSON() ([]byte, error)          { return json.Marshal(s.toJSON()) }
func (s *Doghouse) MarshalJSON() ([]byte, error)           { return json.Marshal(s.toJSON()) }
func (s *MigratedFromSync11) MarshalJSON() ([]byte, error) { return json.Marshal(s.toJSON()) }

func parseKey(t key.Type, s string) (key.Key, error) {
	if s == "" {
		return key.Key{}, fmt.Errorf("%s: %w", t, ErrMissingField)
	}
	return key.ParseHex(t, s)
}

type decodedSession struct {
	sessionToken, kA, kB key.Key
	keyPair              *key.KeyPair
}

func (js *jsonState) session() (decodedSession, error) {
	var ds decodedSession
	var err error
	if ds.sessionToken, err = parseKey(key.SessionToken, js.SessionToken); err != nil {
		return ds, err
	}
	if ds.kA, err = parseKey(key.KA, js.KA); err != nil {
		return ds, err
	}
	if ds.kB, err = parseKey(key.KB, js.KB); err != nil {
		return ds, err
	}
	if len(js.KeyPair) == 0 {
		return ds, fmt.Errorf("keyPair: %w", ErrMissingField)
	}
	if ds.keyPair, err = key.UnmarshalKeyPair(js.KeyPair); err != nil {
		return ds, err
	}
	return ds, nil
}

// Unmarshal reconstructs the State tagged with label from its JSON
// encoding. A missing or unsupported version is an error.
func Unmarshal(label Label, message json.RawMessage) (State, error) {
	s, err := unmarshal(label, message)
	if err != nil {
		return nil, fmt.Errorf("decoding %s state: %w", label, err)
	}
	return s, nil
}

func unmarshal(label Label, message json.RawMessage) (State, error) {
	var js jsonState
	if err := json.Unmarshal(message, &js); err != nil {
		return nil, err
	}
	if js.Version == nil {
		return nil, fmt.Errorf("%w: no version", ErrUnsupportedVersion)
	}
	if *js.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *js.Version)
	}

	switch label {
	case LabelEngaged:
		qs, err := parseKey(key.QuickStretchedPW, js.QuickStretchedPW)
		if err != nil {
			return nil, err
		}
		unwrapKB, err := parseKey(key.UnwrapKB, js.UnwrapKB)
		if err != nil {
			return nil, err
		}
		return NewEngaged(js.Email, js.UID, js.Verified, qs, unwrapKB)
	case LabelCohabiting:
		ds, err := js.session()
		if err != nil {
			return nil, err
		}
		return NewCohabiting(js.Email, js.UID, js.Verified, ds.sessionToken, ds.kA, ds.kB, ds.keyPair)
	case LabelMarried:
		ds, err := js.session()
		if err != nil {
			return nil, err
		}
		return NewMarried(js.Email, js.UID, js.Verified, ds.sessionToken, ds.kA, ds.kB, ds.keyPair, js.Certificate)
	case LabelSeparated:
		return NewSeparated(js.Email, js.UID, js.Verified)
	case LabelDoghouse:
		return NewDoghouse(js.Email, js.UID, js.Verified)
	case LabelMigratedFromSync11:
		return NewMigratedFromSync11(js.Email, js.UID, js.Verified)
	default:
		return nil, ErrUnknownLabel
	}
}

type jsonRecord struct {
	Label Label           `json:"stateLabel"`
	State json.RawMessage `json:"state"`
}

// MarshalRecord encodes s together with its label so it can be restored
// with UnmarshalRecord.
func MarshalRecord(s State) ([]byte, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding %s state: %w", s.Label(), err)
	}
	return json.Marshal(jsonRecord{Label: s.Label(), State: raw})
}

// UnmarshalRecord decodes a record written by MarshalRecord.
func UnmarshalRecord(message json.RawMessage) (State, error) {
	var rec jsonRecord
	if err := json.Unmarshal(message, &rec); err != nil {
		return nil, fmt.Errorf("decoding state record: %w", err)
	}
	return Unmarshal(rec.Label, rec.State)
}
