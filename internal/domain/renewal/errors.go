// internal/domain/renewal/errors.go
package renewal

import (
	"errors"
	"fmt"
)

// ErrRecipientMissing marks a subscription that has no eligible administrative contact.
var ErrRecipientMissing = errors.New("no eligible recipient")

// RecipientMissingError is recoverable: the item is skipped and the run continues.
type RecipientMissingError struct {
	OffsetDays int
	Item       LineItem
}

func (e *RecipientMissingError) Error() string {
	return fmt.Sprintf("%v: company %q (id %d), subscription %d, %d days out",
		ErrRecipientMissing, e.Item.CompanyName, e.Item.CompanyID, e.Item.SubscriptionID, e.OffsetDays)
}

func (e *RecipientMissingError) Unwrap() error { return ErrRecipientMissing }
