package integration

import "time"

// Type identifies the external system an integration binds to.
type Type string

const (
	TypeObjectStore  Type = "objectstore"
	TypeCodeHost     Type = "codehost"
	TypeIssueTracker Type = "issuetracker"
	TypeChat         Type = "chat"
)

// KnownTypes lists the connector types with registered factories.
func KnownTypes() []Type {
	return []Type{TypeObjectStore, TypeCodeHost, TypeIssueTracker, TypeChat}
}

// Integration is a named, owner-scoped configuration binding the platform to
// an external system. (OwnerID, Name) is unique; CredentialRef resolves
// through the secret store and may rotate without changing the id.
type Integration struct {
	ID            string
	OwnerID       string
	Type          Type
	Name          string
	Config        map[string]string
	CredentialRef string
	Tags          []string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Fingerprint captures the parts of an integration whose change must evict
// any cached connector instance.
func (i Integration) Fingerprint() string {
	fp := string(i.Type) + "|" + i.CredentialRef
	for _, k := range sortedKeys(i.Config) {
		fp += "|" + k + "=" + i.Config[k]
	}
	return fp
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// TestResult reports the outcome of a connectivity probe.
type TestResult struct {
	OK          bool          `json:"ok"`
	Latency     time.Duration `json:"latency_ms"`
	Diagnostics string        `json:"diagnostics,omitempty"`
}
