package messaging

import "rentalhub/internal/domain/shared/errs"

var (
	ErrConversationNotFound = errs.New(errs.KindNotFound, "messaging: conversation not found")
	ErrMessageNotFound      = errs.New(errs.KindNotFound, "messaging: message not found")
	ErrNotParticipant       = errs.New(errs.KindAuthorization, "messaging: user is not a participant")
	ErrConversationBlocked  = errs.New(errs.KindAuthorization, "messaging: conversation is blocked")
	ErrBlockedByOther       = errs.New(errs.KindAuthorization, "messaging: only the participant who blocked can change the status")
	ErrTooFewParticipants   = errs.New(errs.KindValidation, "messaging: conversation needs at least two participants")
	ErrDirectChatSize       = errs.New(errs.KindValidation, "messaging: direct conversation must have exactly two participants")
	ErrInvalidParticipant   = errs.New(errs.KindValidation, "messaging: invalid participant id")
	ErrConversationID       = errs.New(errs.KindValidation, "messaging: conversation id required")
	ErrMessageID            = errs.New(errs.KindValidation, "messaging: message id required")
	ErrEmptyMessage         = errs.New(errs.KindValidation, "messaging: message needs content or attachments")
	ErrContentTooLong       = errs.New(errs.KindValidation, "messaging: message content too long")
	ErrTooManyAttachments   = errs.New(errs.KindValidation, "messaging: too many attachments")
	ErrInvalidAttachment    = errs.New(errs.KindValidation, "messaging: invalid attachment")
	ErrInvalidStatus        = errs.New(errs.KindValidation, "messaging: invalid conversation status")
	ErrInvalidCursor        = errs.New(errs.KindValidation, "messaging: invalid cursor")
	ErrForeignMessage       = errs.New(errs.KindValidation, "messaging: message belongs to another conversation")
)
