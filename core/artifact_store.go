package core

// ArtifactStore defines the interface for derived-artifact persistence
// (data contracts, onboarding reports and similar by-products of a workflow
// run). Implementations should be thread-safe and scope artifacts by
// workflow correlation id. Short method names (Save/Get/List/Delete) mirror
// the other sink interfaces for consistency.
type ArtifactStore interface {
	Save(workflowID, artifactID string, data []byte) error
	Get(workflowID, artifactID string) ([]byte, error)
	List(workflowID string) ([]string, error)
	Delete(workflowID, artifactID string) error
}
