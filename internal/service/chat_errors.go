package service

import "errors"

var (
	// ErrNotFound indicates a referenced conversation does not exist. The
	// repository never returns it; GetConversation does.
	ErrNotFound = errors.New("conversation not found")
	// ErrTransientDelivery marks a delivery failure worth retrying.
	ErrTransientDelivery = errors.New("transient delivery failure")
	// ErrDeliveryFailed is returned by SendMessage once retries are exhausted or
	// the failure is permanent. The message was not stored.
	ErrDeliveryFailed = errors.New("message delivery failed")
	// ErrContentRejected indicates content carrying markup the policy would strip.
	ErrContentRejected = errors.New("message content contains markup")
)
