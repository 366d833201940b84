package auth

import (
	"context"

	"github.com/mmynk/holocron/internal/models"
)

// Authenticator decides who a library member is. AuthService only sees this
// interface; the server wires in PasswordAuthenticator.
type Authenticator interface {
	// Register enrolls a member who will sign in with email and credential.
	// An email already on file is ErrEmailExists.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate returns the member matching email and credential, or
	// ErrInvalidCredentials. Unknown emails and wrong credentials look the same.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential rejects a credential too weak to enroll with.
	ValidateCredential(credential string) error
}
