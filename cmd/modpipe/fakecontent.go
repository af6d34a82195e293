package main

import (
	"time"

	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/keyword"

	"github.com/brianvoe/gofakeit/v6"
)

// Generates raw content in the field-name shapes seen from real producers:
// API posts, strides, and flat database rows. A fraction of items include a
// denylisted term.
func fakeContent(faker *gofakeit.Faker, count int, flaggedRatio float64) []content.RawContent {
	out := make([]content.RawContent, 0, count)
	for i := 0; i < count; i++ {
		text := faker.Sentence(10)
		if faker.Float64Range(0, 1) < flaggedRatio {
			text = text + " " + faker.RandomString(keyword.DefaultDenylistTerms)
		}
		created := faker.DateRange(time.Now().AddDate(0, -1, 0), time.Now())

		switch i % 3 {
		case 0:
			out = append(out, content.RawContent{
				"_id":       faker.UUID(),
				"content":   text,
				"author":    map[string]any{"_id": faker.UUID(), "username": faker.Username()},
				"createdAt": created.UTC().Format(time.RFC3339),
			})
		case 1:
			out = append(out, content.RawContent{
				"_id":       map[string]any{"$oid": faker.HexUint64()},
				"type":      "stride",
				"caption":   text,
				"userId":    faker.UUID(),
				"timestamp": created.UnixMilli(),
			})
		default:
			out = append(out, content.RawContent{
				"id":         faker.Number(1, 1_000_000_000),
				"kind":       "post",
				"text":       text,
				"author_id":  faker.Username(),
				"created_at": created.UTC().Format("2006-01-02 15:04:05"),
			})
		}
	}
	return out
}
