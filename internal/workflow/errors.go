package workflow

import "errors"

// ErrSubmissionInFlight is returned when Submit is invoked while a prior
// submission is still uploading or generating. The call is a no-op.
var ErrSubmissionInFlight = errors.New("a submission is already in flight")

// ValidationError reports a locally caught problem with the submission:
// no file, no catalog selection, or a disallowed file type. It never
// reaches a remote collaborator.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// AuthRequiredError means the action needs an active session. It is a
// sign-in prompt, not a terminal failure: complete sign-in and retry the
// original intent.
type AuthRequiredError struct{}

func (e *AuthRequiredError) Error() string { return "sign in to submit a photo" }

// UploadError means the object storage call failed. The submission is
// aborted before any generation call.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "upload failed: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// GenerationError means the generation service returned a non-success
// response or the transport failed. The upstream message is preserved
// for display.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "failed to generate image: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthRequired reports whether err asks for a sign-in.
func IsAuthRequired(err error) bool {
	var ae *AuthRequiredError
	return errors.As(err, &ae)
}

// IsUpload reports whether err is an upload-class failure.
func IsUpload(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue)
}

// IsGeneration reports whether err is a generation-class failure.
func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
