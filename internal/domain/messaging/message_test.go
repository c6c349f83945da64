package messaging

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageRules(t *testing.T) {
	image := Attachment{URL: "https://cdn/x.png", MimeType: "image/png", Size: 10}
	cases := []struct {
		name    string
		content string
		atts    []Attachment
		want    error
	}{
		{name: "blank without attachments", content: "   ", want: ErrEmptyMessage},
		{name: "attachment only", atts: []Attachment{image}},
		{name: "too long", content: strings.Repeat("é", MaxContentLength+1), want: ErrContentTooLong},
		{name: "max length", content: strings.Repeat("é", MaxContentLength)},
		{name: "attachment without url", atts: []Attachment{{Kind: AttachmentFile}}, want: ErrInvalidAttachment},
		{name: "too many attachments", atts: slices.Repeat([]Attachment{image}, MaxAttachments+1), want: ErrTooManyAttachments},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := NewMessage(NewMessageParams{ID: "m", ConversationID: "c", SenderID: "a", Content: tc.content, Attachments: tc.atts, CreatedAt: t0})
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DeliverySent, msg.Status)
			assert.True(t, msg.ReadByUser("a"))
		})
	}
}

func TestNewMessageInfersAttachmentKind(t *testing.T) {
	msg, err := NewMessage(NewMessageParams{
		ID: "m", ConversationID: "c", SenderID: "a",
		Attachments: []Attachment{{URL: "u", MimeType: "application/pdf"}},
		CreatedAt:   t0.Add(123456 * time.Nanosecond),
	})
	require.NoError(t, err)
	assert.Equal(t, AttachmentDocument, msg.Attachments[0].Kind)
	assert.Equal(t, t0, msg.CreatedAt)
}

func TestKindFromMIME(t *testing.T) {
	cases := map[string]AttachmentKind{
		"image/jpeg":               AttachmentImage,
		"video/mp4":                AttachmentVideo,
		"audio/ogg; codecs=opus":   AttachmentAudio,
		"text/plain; charset=utf-8": AttachmentDocument,
		"application/pdf":          AttachmentDocument,
		"application/zip":          AttachmentFile,
		"":                         AttachmentFile,
	}
	for mime, want := range cases {
		assert.Equal(t, want, KindFromMIME(mime), mime)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	msg, err := NewMessage(NewMessageParams{ID: "m", ConversationID: "c", SenderID: "a", Content: "hi", CreatedAt: t0})
	require.NoError(t, err)

	assert.True(t, msg.MarkRead("b", t0.Add(time.Second)))
	assert.False(t, msg.MarkRead("b", t0.Add(2*time.Second)))
	assert.Len(t, msg.ReadBy, 2)

	assert.False(t, msg.RefreshStatus([]string{"a", "b", "c"}))
	assert.Equal(t, DeliverySent, msg.Status)
	assert.True(t, msg.RefreshStatus([]string{"a", "b"}))
	assert.Equal(t, DeliveryRead, msg.Status)
}

func TestPromoteIsMonotonic(t *testing.T) {
	msg := &Message{Status: DeliveryRead}
	assert.False(t, msg.Promote(DeliveryDelivered))
	assert.Equal(t, DeliveryRead, msg.Status)

	msg.Status = DeliverySent
	assert.True(t, msg.Promote(DeliveryDelivered))
	assert.False(t, msg.Promote(DeliverySent))
}

func TestNewestFirstOrdering(t *testing.T) {
	msgs := []*Message{
		{ID: "a", CreatedAt: t0},
		{ID: "c", CreatedAt: t0.Add(time.Second)},
		{ID: "b", CreatedAt: t0},
	}
	slices.SortFunc(msgs, NewestFirst)
	ids := []MessageID{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	assert.Equal(t, []MessageID{"c", "b", "a"}, ids)
}

func TestCursorRoundTripAndPrecedes(t *testing.T) {
	c := Cursor{At: t0, ID: "m5"}
	parsed, err := ParseCursor(c.String())
	require.NoError(t, err)
	assert.True(t, parsed.At.Equal(t0))
	assert.Equal(t, MessageID("m5"), parsed.ID)

	assert.True(t, c.Precedes(&Message{ID: "m4", CreatedAt: t0}))
	assert.False(t, c.Precedes(&Message{ID: "m6", CreatedAt: t0}))
	assert.True(t, c.Precedes(&Message{ID: "m9", CreatedAt: t0.Add(-time.Millisecond)}))

	for _, raw := range []string{"", "123", "abc|m1", "-5|m1", "10|"} {
		_, err := ParseCursor(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello there", Preview("  hello \n there ", nil))
	assert.Equal(t, "[image]", Preview("", []Attachment{{Kind: AttachmentImage}}))
	long := Preview(strings.Repeat("a", 200), nil)
	assert.True(t, strings.HasSuffix(long, "…"))
	assert.Equal(t, 121, len([]rune(long)))
}
