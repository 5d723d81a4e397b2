package types

// SecretString wraps sensitive configuration values so they cannot leak
// through logging or JSON serialization. Call Value() to access the
// underlying secret at the point of use.
type SecretString struct {
	value string
}

// NewSecretString wraps a raw secret value.
func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

// Value returns the underlying secret.
func (s SecretString) Value() string { return s.value }

// IsEmpty reports whether no secret is set.
func (s SecretString) IsEmpty() bool { return s.value == "" }

// String implements fmt.Stringer with a redacted placeholder.
func (s SecretString) String() string { return "[REDACTED]" }

// GoString prevents %#v from exposing the secret.
func (s SecretString) GoString() string { return "types.SecretString{value:\"[REDACTED]\"}" }

// MarshalJSON always serializes as a redacted placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// UnmarshalJSON accepts a plain JSON string.
func (s *SecretString) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s.value = string(data[1 : len(data)-1])
		return nil
	}
	s.value = string(data)
	return nil
}

// Decode implements envconfig.Decoder so secrets load directly from the
// environment without passing through a plain string field.
func (s *SecretString) Decode(value string) error {
	s.value = value
	return nil
}
