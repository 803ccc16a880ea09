package booksync

import (
	"strconv"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/billfeed/internal/domain"
)

// BillToNotionProperties converts a bill record to Notion page
// properties for the bills database.
func BillToNotionProperties(rec domain.BillRecord) notionapi.Properties {
	props := notionapi.Properties{
		"Bill ID": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: strconv.FormatInt(rec.ID, 10),
					},
				},
			},
		},
		"Type": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(rec.Type),
			},
		},
		"Amount": notionapi.NumberProperty{
			Number: rec.Money.InexactFloat64(),
		},
		"Book": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: rec.BookName,
			},
		},
		"Category": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: rec.CateName,
			},
		},
	}

	if !rec.OccurredAt.IsZero() {
		d := notionapi.Date(rec.OccurredAt)
		props["Occurred At"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if rec.ShopName != "" {
		props["Shop"] = richText(rec.ShopName)
	}
	if rec.AccountFrom != "" {
		props["Account From"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: rec.AccountFrom},
		}
	}
	if rec.AccountTo != "" {
		props["Account To"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: rec.AccountTo},
		}
	}
	if rec.Currency != "" {
		props["Currency"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: rec.Currency},
		}
	}
	if rec.Remark != "" {
		props["Remark"] = richText(rec.Remark)
	}
	if rec.EventID != "" {
		props["Event ID"] = richText(rec.EventID)
	}

	return props
}

func richText(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

// extractBillID extracts the bill ID from a Notion page's properties.
// Returns 0 if not found.
func extractBillID(page notionapi.Page) int64 {
	prop, ok := page.Properties["Bill ID"]
	if !ok {
		return 0
	}
	title, ok := prop.(*notionapi.TitleProperty)
	if !ok || len(title.Title) == 0 {
		return 0
	}
	id, err := strconv.ParseInt(title.Title[0].PlainText, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
