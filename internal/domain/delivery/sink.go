package delivery

import (
	"context"
	"fmt"
)

// ErrPermanentRejection signals that the recipient can never be reached again
// on this channel (blocked the bot, deleted the account, chat gone). The
// dispatcher reacts by evicting the recipient entirely.
var ErrPermanentRejection = fmt.Errorf("recipient permanently rejected delivery")

// Sink attempts delivery of one message to one recipient.
//
// A nil return means the message was accepted by the channel. An error that
// wraps ErrPermanentRejection means the recipient is gone for good; any other
// error is a transient failure for this attempt only.
type Sink interface {
	Send(ctx context.Context, recipientID int64, text string) error
}
