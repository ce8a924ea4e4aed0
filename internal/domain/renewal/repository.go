// internal/domain/renewal/repository.go
package renewal

import "context"

// Repository finds subscriptions eligible for a rule.
type Repository interface {
	// FetchEligible returns every subscription whose renewal date equals rule.TargetDate and whose
	// pricing matches the rule's cycle and filter, joined with the company's primary admin contact.
	// Any error is fatal for the run.
	FetchEligible(ctx context.Context, rule Rule) ([]Match, error)
}
