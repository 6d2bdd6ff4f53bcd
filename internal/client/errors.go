package client

import "fmt"

// Failure classes for the two-phase upload-then-generate protocol.
// The orchestrator dispatches on these with errors.As to decide which
// short message lands on the job record.

// UploadInitError means the upload negotiation request failed or the
// service did not return a destination URL.
type UploadInitError struct {
	Status int
	Body   string
}

func (e *UploadInitError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload negotiation failed (status %d): %s", e.Status, e.Body)
	}
	return "upload negotiation returned no upload URL"
}

// UploadTransferError means the byte transfer to the negotiated URL was
// rejected by the transport.
type UploadTransferError struct {
	Status int
	Body   string
}

func (e *UploadTransferError) Error() string {
	return fmt.Sprintf("upload transfer failed (status %d): %s", e.Status, e.Body)
}

// MissingFileURIError means the finalized transfer response carried no
// reference to the stored file.
type MissingFileURIError struct {
	Body string
}

func (e *MissingFileURIError) Error() string {
	return fmt.Sprintf("upload response missing file uri: %s", e.Body)
}

// GenerationError carries the upstream error body of a failed
// generateContent call.
type GenerationError struct {
	Status int
	Body   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (status %d): %s", e.Status, e.Body)
}

// EmptyResponseError means generation succeeded but returned no text.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string {
	return "generation returned no text"
}
