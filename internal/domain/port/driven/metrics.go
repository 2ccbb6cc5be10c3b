package driven

import "github.com/ericfisherdev/credvault/internal/domain/model"

// CredentialMetrics records credential lifecycle events.
type CredentialMetrics interface {
	CredentialSaved(provider model.Provider)
	CredentialQuarantined(provider model.Provider)
	CredentialResolved(provider model.Provider, source model.CredentialSource)
}
