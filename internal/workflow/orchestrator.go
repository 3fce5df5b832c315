// Package workflow sequences one photo submission: authentication
// gating, file validation, the upload to object storage, the synchronous
// generation request, and the final result or classified error.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/carsnpoke/internal/catalog"
	"github.com/fpang/carsnpoke/internal/generate"
	"github.com/fpang/carsnpoke/internal/media"
	"github.com/fpang/carsnpoke/internal/session"
	"github.com/fpang/carsnpoke/internal/storage"
)

// State is the orchestrator's position in the submission cycle.
type State int

const (
	// StateIdle is the starting state, before any file is picked.
	StateIdle State = iota
	// StateFileSelected holds a validated file awaiting submission.
	StateFileSelected
	// StateAwaitingAuth surfaces the sign-in prompt; the pick that led
	// here was discarded.
	StateAwaitingAuth
	// StateUploading covers the object storage call.
	StateUploading
	// StateGenerating covers the generation service call.
	StateGenerating
	// StateSuccess holds a displayable result until a new pick restarts
	// the cycle.
	StateSuccess
	// StateFailed holds the classified error; re-enterable.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFileSelected:
		return "file-selected"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateUploading:
		return "uploading"
	case StateGenerating:
		return "generating"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sessions is the read side of the session tracker.
type Sessions interface {
	Current() (session.Session, bool)
}

// Store uploads one submission image and returns its durable reference.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (storage.Asset, error)
}

// Generator performs the synchronous generation call.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Result, error)
}

// Orchestrator drives one submission at a time through the cycle
// Idle → FileSelected → Uploading → Generating → Success | Failed.
// At most one upload+generation round trip is in flight per instance;
// Submit while in flight is a no-op. Methods are safe for concurrent use.
type Orchestrator struct {
	sessions  Sessions
	store     Store
	generator Generator
	now       func() time.Time

	mu       sync.Mutex
	state    State
	file     *media.SelectedFile
	entry    *catalog.Entry
	result   *generate.Result
	lastErr  error
	inFlight bool
}

// New creates an idle orchestrator over the given collaborators.
func New(sessions Sessions, store Store, generator Generator) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		store:     store,
		generator: generator,
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the current workflow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the generation result, or nil outside StateSuccess.
func (o *Orchestrator) Result() *generate.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// LastError returns the classified error from the last failed attempt.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// SelectFile handles a file pick. Without an active session the pick is
// discarded and the state moves to AwaitingAuth; the file is never
// retained for an unauthenticated user. A disallowed type is rejected
// with a ValidationError and the state is unchanged. On success any
// prior preview handle is revoked, any prior result is cleared, and the
// cycle restarts at FileSelected.
func (o *Orchestrator) SelectFile(path string) error {
	if _, ok := o.sessions.Current(); !ok {
		o.mu.Lock()
		o.state = StateAwaitingAuth
		o.mu.Unlock()
		log.Info().Msg("File pick discarded: sign-in required")
		return &AuthRequiredError{}
	}

	f, err := media.Select(path)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			return &ValidationError{Reason: err.Error()}
		}
		return err
	}

	o.mu.Lock()
	if o.file != nil {
		o.file.Release()
	}
	o.file = f
	o.result = nil
	o.lastErr = nil
	o.state = StateFileSelected
	o.mu.Unlock()

	log.Debug().Str("file", f.Name).Msg("File ready for submission")
	return nil
}

// SelectEntry records the catalog pick. Pure data update; the workflow
// state does not change.
func (o *Orchestrator) SelectEntry(e catalog.Entry) {
	o.mu.Lock()
	o.entry = &e
	o.mu.Unlock()
}

// SelectedEntry returns the current catalog pick, if any.
func (o *Orchestrator) SelectedEntry() (catalog.Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.entry == nil {
		return catalog.Entry{}, false
	}
	return *o.entry, true
}

// Submit runs one workflow attempt: upload, then exactly one generation
// call. It blocks until the attempt resolves. While a prior attempt is
// in flight the call is a no-op returning ErrSubmissionInFlight. An
// unauthenticated Submit moves to AwaitingAuth without contacting any
// collaborator; a missing file or catalog pick fails locally the same
// way. Remote failures are terminal for the attempt; a retry re-uploads.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		log.Debug().Msg("Submit ignored: submission already in flight")
		return ErrSubmissionInFlight
	}

	// The principal is snapshotted here. A logout arriving later lets
	// the in-flight attempt complete; only the next Submit is blocked.
	sess, ok := o.sessions.Current()
	if !ok {
		o.state = StateAwaitingAuth
		o.mu.Unlock()
		log.Info().Msg("Submit blocked: sign-in required")
		return &AuthRequiredError{}
	}

	if o.file == nil || o.entry == nil {
		o.mu.Unlock()
		return &ValidationError{Reason: "upload a PNG or JPEG image and select a Pokémon"}
	}

	file := o.file
	entry := *o.entry
	o.inFlight = true
	o.result = nil
	o.lastErr = nil
	o.state = StateUploading
	o.mu.Unlock()

	key := storage.ObjectKey(sess.Principal, file.Name, o.now())
	asset, err := o.store.Upload(ctx, key, file.Data, file.ContentType)
	if err != nil {
		return o.fail(&UploadError{Err: err})
	}

	o.setState(StateGenerating)

	// The stored asset reference lives only for this one generation
	// call; it is not reused on retry.
	result, err := o.generator.Generate(ctx, generate.Request{
		ImageURL:    asset.PublicURL,
		PokemonName: entry.Name,
		PokemonID:   entry.ID,
	})
	if err != nil {
		return o.fail(&GenerationError{Err: err})
	}

	o.mu.Lock()
	o.result = result
	o.state = StateSuccess
	o.inFlight = false
	o.mu.Unlock()

	log.Info().
		Str("pokemon", entry.Name).
		Int("imageBytes", len(result.ImageBytes)).
		Msg("Submission succeeded")
	return nil
}

// Reset discards the held file, result, and error and returns to Idle.
// The catalog pick survives a reset.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.file != nil {
		o.file.Release()
		o.file = nil
	}
	o.result = nil
	o.lastErr = nil
	o.state = StateIdle
	o.mu.Unlock()
}

// Close releases locally held resources. Call on teardown.
func (o *Orchestrator) Close() {
	o.Reset()
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// fail records a terminal outcome for this attempt.
func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	o.state = StateFailed
	o.lastErr = err
	o.inFlight = false
	o.mu.Unlock()
	log.Error().Err(err).Msg("Submission failed")
	return err
}
