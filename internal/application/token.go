package application

import "github.com/google/uuid"

// NewBuildRequestToken mints a random token identifying one build request.
// It is the token generator the services use outside tests.
func NewBuildRequestToken() string {
	return uuid.NewString()
}
