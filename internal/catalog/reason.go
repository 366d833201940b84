package catalog

import "errors"

var ErrInvalidDeleteReason = errors.New("delete reason must be one of: transfer, disposal, lost, other")

// DeleteReason records why a book left the shelf.
type DeleteReason string

const (
	ReasonTransfer DeleteReason = "transfer"
	ReasonDisposal DeleteReason = "disposal"
	ReasonLost     DeleteReason = "lost"
	ReasonOther    DeleteReason = "other"
)

// ParseDeleteReason accepts exactly one of the known reasons.
func ParseDeleteReason(s string) (DeleteReason, error) {
	switch r := DeleteReason(s); r {
	case ReasonTransfer, ReasonDisposal, ReasonLost, ReasonOther:
		return r, nil
	default:
		return "", ErrInvalidDeleteReason
	}
}
